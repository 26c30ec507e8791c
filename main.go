package main

import "github.com/teemow/voicecal/cmd"

// Overridden at release time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
