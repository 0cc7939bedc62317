package main

// Build information, overridden with -ldflags "-X main.version=..."
var (
	version   = "development"
	gitCommit = "unknown"
)
