// Package main is the single-binary entrypoint for ytdlhost.
// ytdlhost downloads media on demand and serves the results over HTTP.
package main

import "github.com/ytdlhost/ytdlhost/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
