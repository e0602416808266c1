//go:build !darkmixdebug

package darkmix

const panicOnProgrammingError = false
