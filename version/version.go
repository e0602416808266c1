// Package version reports the build of the darkmix command.
package version

import "runtime/debug"

// Version can be set at build time:
//
//	go build -ldflags "-X github.com/firehorse/darkmix/version.Version=$(git describe --dirty)"
var Version string

// Hash is the short VCS revision recorded by the toolchain, with a -dirty
// suffix for modified trees.
var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	modified := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if revision != "" && modified {
		revision += "-dirty"
	}
	return revision
}()

// String is Version if set, else Hash, else "dev".
func String() string {
	switch {
	case Version != "":
		return Version
	case Hash != "":
		return Hash
	}
	return "dev"
}
