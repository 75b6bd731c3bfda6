package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// maxLine bounds one encoded event.
const maxLine = 1 << 20

// Stats summarises a replay.
type Stats struct {
	Lines     int `json:"lines"`
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`
}

// Replay applies one event per line of r in order. Blank lines are ignored.
// It stops at the first fatal or transient error.
func Replay(ctx context.Context, r io.Reader, projector Applier) (Stats, error) {
	var stats Stats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		outcome, err := deliver(ctx, projector, line)
		switch outcome {
		case Applied:
			stats.Applied++
		case Skipped:
			stats.Skipped++
		case Malformed:
			stats.Malformed++
		}
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	return stats, nil
}

// ReplayFile replays the JSON-lines file at path.
func ReplayFile(ctx context.Context, path string, projector Applier, logger *slog.Logger) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	stats, err := Replay(ctx, f, projector)
	if logger != nil {
		logger.InfoContext(ctx, "ledger events file replayed",
			"path", path,
			"lines", stats.Lines,
			"applied", stats.Applied,
			"skipped", stats.Skipped,
			"malformed", stats.Malformed,
		)
	}
	return stats, err
}
