package tasks

import (
	"fmt"

	"github.com/desertthunder/leadsync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Percent returns Step/Total as a whole percentage clamped to 0..100.
func (u ProgressUpdate) Percent() int {
	if u.Total <= 0 {
		return 0
	}
	return max(0, min(100, u.Step*100/u.Total))
}

// Operation phase enumeration
type Phase int

const (
	Load Phase = iota
	Extract
	Submit
	Verify
	FetchSnapshot
	ExportSnapshot
)

func (p Phase) String() string {
	switch p {
	case Load:
		return "load"
	case Extract:
		return "extract"
	case Submit:
		return "submit"
	case Verify:
		return "verify"
	case FetchSnapshot:
		return "fetch_snapshot"
	case ExportSnapshot:
		return "export_snapshot"
	default:
		return ""
	}
}

// SendProgress sends a progress update through the channel without blocking.
func SendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// LoadUpdate reports that the agent is loading the namespace snapshot.
func LoadUpdate(v models.Version) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Load,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Loading %s dataset...", v.Label()),
	}
}

// ExtractUpdate reports how many candidates a pass found.
func ExtractUpdate(found int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Extract,
		Step:    found,
		Total:   found,
		Message: fmt.Sprintf("Found %d candidates", found),
	}
}

// SubmitUpdate reports one accepted record.
func SubmitUpdate(step, total int, u models.UserRecord) ProgressUpdate {
	name := u.Username
	if name == "" {
		name = u.ID
	}
	return ProgressUpdate{
		Phase:   Submit,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, name),
		Data:    u,
	}
}

// VerifyUpdate reports a submission read-back.
func VerifyUpdate(step, total, stored int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Verify,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Verified %d records stored", stored),
	}
}

func fetchSnapshotUpdate(step, total int, v models.Version) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSnapshot,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching %s dataset...", v.Label()),
	}
}

func exportCompletedUpdate(step, total int, res ExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportSnapshot,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s %s (%d records)", step, total, res.Version, res.Format, res.Records),
		Data:    res,
	}
}

func exportFailedUpdate(step, total int, res ExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportSnapshot,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s %s: %s", step, total, res.Version, res.Format, res.Error),
		Data:    res,
	}
}
