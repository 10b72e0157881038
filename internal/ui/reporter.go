package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/desertthunder/phx/internal/tasks"
	"github.com/dustin/go-humanize"
)

// Reporter writes progress updates as plain status lines, for pipes, logs and --no-progress.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Consume prints every update until progress is closed.
func (r *Reporter) Consume(progress <-chan tasks.ProgressUpdate) {
	for update := range progress {
		r.Update(update)
	}
}

// Update prints a single update.
func (r *Reporter) Update(u tasks.ProgressUpdate) {
	if u.Message == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case u.Phase == tasks.Sync && u.Total > 0 && u.Step > 0:
		width := len(fmt.Sprint(u.Total))
		fmt.Fprintf(r.w, "[%*d/%d] %s\n", width, u.Step, u.Total, u.Message)
	case u.Phase == tasks.Sync && u.Step > 0:
		fmt.Fprintf(r.w, "[%d] %s\n", u.Step, u.Message)
	default:
		fmt.Fprintln(r.w, u.Message)
	}
}

// Notice prints an out-of-band message such as a retry warning.
func (r *Reporter) Notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "! %s\n", text)
}

// Summary is the closing line of a pass.
func Summary(res *tasks.RunResult) string {
	if res == nil {
		return "Nothing was synced."
	}
	head := "Sync complete"
	if res.Stopped {
		head = "Sync stopped early"
	}
	s := fmt.Sprintf("%s: %d processed, %d downloaded (%s), %d already present",
		head, res.Processed, res.Transferred, humanize.Bytes(uint64(max(res.Bytes, 0))), res.Existing)
	if n := res.Failed + res.Unresolved; n > 0 {
		s += fmt.Sprintf(", %d failed", n)
	}
	if res.Printed > 0 {
		s += fmt.Sprintf(", %d would be downloaded", res.Printed)
	}
	if res.Deleted > 0 {
		s += fmt.Sprintf(", %d deleted", res.Deleted)
	}
	return s
}
