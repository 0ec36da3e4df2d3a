// Package errors provides structured errors for the CLI surface:
// stable codes, fix suggestions, and terminal-friendly formatting.
//
// Server-side code reports evaluation faults in-band over the wire and
// does not use this package; it exists for the places where a human is
// reading stderr, mainly configuration and startup failures.
package errors
