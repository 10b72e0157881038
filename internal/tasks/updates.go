package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a sync pass.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase     // Operation phase
	Step    int       // Items handled so far in this phase
	Total   int       // Total items in this phase, -1 when unknown
	Message string    // Human-readable message for display
	Data    RunResult // Counters at the time of the update
}

// Operation phase enumeration
type Phase int

const (
	Enumerate Phase = iota
	Sync
	Cleanup
	Complete
)

func (p Phase) String() string {
	switch p {
	case Enumerate:
		return "enumerate"
	case Sync:
		return "sync"
	case Cleanup:
		return "cleanup"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func enumerateUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Enumerate,
		Total:   -1,
		Message: "Looking up all photos...",
	}
}

func startUpdate(total int, opts Options, dest string) ProgressUpdate {
	count := "???"
	if total >= 0 {
		count = fmt.Sprint(total)
	}
	what := "photos"
	if opts.DownloadVideos {
		what = "photos and videos"
	}
	return ProgressUpdate{
		Phase:   Sync,
		Total:   total,
		Message: fmt.Sprintf("Downloading %s %s %s to %s/ ...", count, opts.Size, what, dest),
		Data:    RunResult{Total: total},
	}
}

func itemUpdate(r RunResult, msg string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Sync,
		Step:    r.Processed,
		Total:   r.Total,
		Message: msg,
		Data:    r,
	}
}

func stopUpdate(r RunResult, threshold int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Sync,
		Step:    r.Processed,
		Total:   r.Total,
		Message: fmt.Sprintf("Found %d consecutive previously downloaded photos. Exiting", threshold),
		Data:    r,
	}
}

func cleanupStartUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Cleanup,
		Total:   -1,
		Message: "Deleting any files found in 'Recently Deleted'...",
	}
}

func cleanupUpdate(step int, r RunResult, msg string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Cleanup,
		Step:    step,
		Total:   -1,
		Message: msg,
		Data:    r,
	}
}

func completeUpdate(r RunResult) ProgressUpdate {
	msg := "All photos have been downloaded!"
	if r.Stopped {
		msg = "Stopped early."
	}
	return ProgressUpdate{
		Phase:   Complete,
		Step:    r.Processed,
		Total:   r.Total,
		Message: fmt.Sprintf("%s %s", msg, describe(r)),
		Data:    r,
	}
}
