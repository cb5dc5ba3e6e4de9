// Package cli implements the ytdlhost command-line interface using Cobra.
// Besides serve, every command works directly against the state database,
// so keys can be managed while the server is stopped.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ytdlhost",
	Short: "ytdlhost — download-on-demand media service",
	Long: `ytdlhost accepts audio and video download requests over HTTP,
admits them against per-key and global quotas, runs yt-dlp in the
background and tags finished MP3s with artist and title.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
