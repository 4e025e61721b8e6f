package main

// Default limits for CLI commands.
const (
	DefaultQueryLimit   = 10
	DefaultListLimit    = 50
	DefaultMessageLimit = 20
)

// Valid output formats.
var validFormats = []string{"text", "json"}
