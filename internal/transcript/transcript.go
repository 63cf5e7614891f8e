package transcript

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"
)

// Direction tells where a transcript entry came from.
type Direction string

const (
	Received Direction = "rx"   // line from the cover controller
	Sent     Direction = "tx"   // command written by the app
	Info     Direction = "info" // app-side note, e.g. a failed write
)

// Entry is one row of the message log.
type Entry struct {
	Timestamp time.Time
	Direction Direction
	Text      string
}

// ExportOptions configures how the message log is exported to CSV.
type ExportOptions struct {
	FilePath          string
	IncludeTimestamps bool
	FilterByTime      bool
	StartTime         time.Time
	EndTime           time.Time
}

// Export writes entries to a CSV file based on the provided options and
// returns the number of rows written.
func Export(entries []Entry, opts ExportOptions) (int, error) {
	f, err := os.Create(opts.FilePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"Direction", "Text"}
	if opts.IncludeTimestamps {
		header = append([]string{"Timestamp"}, header...)
	}
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	rows := 0
	for _, e := range entries {
		if opts.FilterByTime && !inRange(e.Timestamp, opts) {
			continue
		}

		record := []string{string(e.Direction), e.Text}
		if opts.IncludeTimestamps {
			record = append([]string{e.Timestamp.Format("2006-01-02 15:04:05.000")}, record...)
		}
		if err := w.Write(record); err != nil {
			return rows, fmt.Errorf("failed to write record: %w", err)
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return rows, fmt.Errorf("failed to flush csv writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return rows, fmt.Errorf("failed to close file: %w", err)
	}
	return rows, nil
}

// A zero StartTime or EndTime leaves that side of the range open.
func inRange(ts time.Time, opts ExportOptions) bool {
	if !opts.StartTime.IsZero() && ts.Before(opts.StartTime) {
		return false
	}
	if !opts.EndTime.IsZero() && ts.After(opts.EndTime) {
		return false
	}
	return true
}

// ParseClock parses an HH:MM:SS entry as a time on the same day as now.
func ParseClock(text string, now time.Time) (time.Time, error) {
	t, err := time.Parse("15:04:05", text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format (use HH:MM:SS): %s", text)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location()), nil
}
