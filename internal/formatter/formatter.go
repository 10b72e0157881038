// package formatter builds destination filenames and renders sync history as CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/desertthunder/phx/internal/models"
	"github.com/dustin/go-humanize"
)

const timeLayout = "2006-01-02 15:04:05"

// Format selects a history renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a user-supplied output format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatCSV, FormatMarkdown:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, csv or markdown)", s)
}

// Render dispatches to the exporter for f.
func Render(runs []*models.SyncRun, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		return RunsToCSV(runs)
	case FormatMarkdown:
		return RunsToMarkdown(runs)
	default:
		return RunsToText(runs)
	}
}

// RunsToCSV converts runs to CSV with one row per run.
func RunsToCSV(runs []*models.SyncRun) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{
		"Sequence", "ID", "Started", "Status", "Destination", "Backend", "Mode", "Size",
		"Total", "Processed", "Transferred", "Existing", "Skipped", "Unresolved", "Failed", "Deleted",
		"Bytes", "Duration",
	}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		c := run.Counts()
		record := []string{
			strconv.Itoa(run.Sequence()),
			run.ID(),
			run.StartedAt().UTC().Format(time.RFC3339),
			string(run.Status()),
			run.Destination(),
			run.Backend(),
			run.Mode(),
			run.Size(),
			strconv.Itoa(c.Total),
			strconv.Itoa(c.Processed),
			strconv.Itoa(c.Transferred),
			strconv.Itoa(c.Existing),
			strconv.Itoa(c.Skipped),
			strconv.Itoa(c.Unresolved),
			strconv.Itoa(c.Failed),
			strconv.Itoa(c.Deleted),
			strconv.FormatInt(c.Bytes, 10),
			duration(run),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// RunsToMarkdown renders runs as a Markdown table.
func RunsToMarkdown(runs []*models.SyncRun) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Sync history\n\n")
	if len(runs) == 0 {
		buf.WriteString("_No runs recorded._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| # | Started | Status | Destination | Mode | Transferred | Existing | Failed | Data | Duration |\n")
	buf.WriteString("|---|---------|--------|-------------|------|-------------|----------|--------|------|----------|\n")
	for _, run := range runs {
		c := run.Counts()
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %d | %d | %d | %s | %s |\n",
			run.Sequence(),
			run.StartedAt().UTC().Format(timeLayout),
			run.Status(),
			run.Destination(),
			run.Mode(),
			c.Transferred,
			c.Existing,
			c.Failed,
			humanize.Bytes(uint64(c.Bytes)),
			duration(run),
		)
	}
	return buf.Bytes(), nil
}

// RunsToText renders runs as indented plain text blocks.
func RunsToText(runs []*models.SyncRun) ([]byte, error) {
	var buf bytes.Buffer

	if len(runs) == 0 {
		buf.WriteString("No runs recorded.\n")
		return buf.Bytes(), nil
	}

	for i, run := range runs {
		if i > 0 {
			buf.WriteString("\n")
		}
		c := run.Counts()
		fmt.Fprintf(&buf, "Run #%d  %s  %s\n", run.Sequence(), run.StartedAt().UTC().Format(timeLayout), run.Status())
		fmt.Fprintf(&buf, "  destination: %s (%s)\n", run.Destination(), run.Backend())
		fmt.Fprintf(&buf, "  mode: %s  size: %s  total: %s\n", run.Mode(), run.Size(), total(c.Total))
		fmt.Fprintf(&buf, "  processed %d, transferred %d (%s), existing %d, skipped %d, unresolved %d, failed %d, deleted %d\n",
			c.Processed, c.Transferred, humanize.Bytes(uint64(c.Bytes)), c.Existing, c.Skipped, c.Unresolved, c.Failed, c.Deleted)
		fmt.Fprintf(&buf, "  duration: %s\n", duration(run))
		if msg := run.ErrorMessage(); msg != "" {
			fmt.Fprintf(&buf, "  error: %s\n", msg)
		}
	}
	return buf.Bytes(), nil
}

// WriteExport writes rendered history to path, or returns the data untouched when path is empty.
func WriteExport(data []byte, path string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func total(n int) string {
	if n < 0 {
		return "unknown"
	}
	return strconv.Itoa(n)
}

func duration(run *models.SyncRun) string {
	if run.FinishedAt() == nil {
		return "running"
	}
	return run.Duration().Round(time.Second).String()
}
