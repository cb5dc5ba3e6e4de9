// Package tagger rewrites ID3v2 artist/title frames on finished MP3 files.
// It is advisory: a rewrite never fails the task that produced the file.
package tagger

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// Separator splits "Artist - Title" strings. Only the first occurrence counts.
const Separator = " - "

// State is the advisory result of a rewrite.
type State string

const (
	Written State = "written"
	Skipped State = "skipped"
	Failed  State = "failed"
)

// Outcome describes what Rewrite did. It is never an error for the caller.
type Outcome struct {
	State  State
	Artist string
	Title  string
	Reason string
	Err    error
}

// ErrNotMP3 marks files the tagger does not handle.
var ErrNotMP3 = errors.New("not an mp3 file")

// SplitTitle splits s on the first Separator and trims both halves.
// ok is false when there is no separator or either half is empty, in which
// case title is the whole trimmed string.
func SplitTitle(s string) (artist, title string, ok bool) {
	left, right, found := strings.Cut(s, Separator)
	if found {
		artist = strings.TrimSpace(left)
		title = strings.TrimSpace(right)
		if artist != "" && title != "" {
			return artist, title, true
		}
	}
	return "", strings.TrimSpace(s), false
}

// Processor rewrites tags. The zero value is ready to use.
type Processor struct {
	// Logf receives diagnostics. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

// New returns a Processor that logs through the standard logger.
func New() *Processor {
	return &Processor{Logf: log.Printf}
}

func (p *Processor) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Rewrite replaces the artist and title frames of the MP3 at path with
// values derived from title. Existing TPE1/TIT2 frames are always removed
// first so repeated rewrites converge on the same tag. All frames are
// written UTF-8 in an ID3v2.4 header, created if the file has none.
func (p *Processor) Rewrite(path, title string) Outcome {
	if _, err := os.Stat(path); err != nil {
		p.logf("[tagger] file does not exist: %s", path)
		return Outcome{State: Skipped, Reason: "file does not exist", Err: err}
	}
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		p.logf("[tagger] skipping non-MP3 file: %s", path)
		return Outcome{State: Skipped, Reason: "not mp3", Err: ErrNotMP3}
	}

	artist, track, split := SplitTitle(title)
	if err := writeFrames(path, artist, track, split); err != nil {
		p.logf("[tagger] rewrite %s failed: %v", path, err)
		return Outcome{State: Failed, Reason: "tag write failed", Err: err}
	}

	out := Outcome{State: Written, Title: track}
	if split {
		out.Artist = artist
	}
	return out
}

func writeFrames(path, artist, track string, split bool) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tag: %w", err)
	}
	defer tag.Close()

	// v2.3 has no UTF-8 text encoding.
	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	artistID := tag.CommonID("Artist")
	titleID := tag.CommonID("Title")
	tag.DeleteFrames(artistID)
	tag.DeleteFrames(titleID)

	if split {
		tag.AddTextFrame(artistID, id3v2.EncodingUTF8, artist)
	}
	if track != "" {
		tag.AddTextFrame(titleID, id3v2.EncodingUTF8, track)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tag: %w", err)
	}
	return nil
}
