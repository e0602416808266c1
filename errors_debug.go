//go:build darkmixdebug

package darkmix

const panicOnProgrammingError = true
