package cli

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ytdlhost/ytdlhost/internal/daemon"
	"github.com/ytdlhost/ytdlhost/internal/infra/sqlite"
)

// openStore opens the state database named by the current config.
func openStore() (*sqlite.DB, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	return sqlite.Open(cfg.DataDir())
}

// ago renders t relative to now, or "-" for the zero time.
func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
