package service

import (
	"fmt"

	"github.com/Ning0612/ipmtool/internal/assemble"
	"github.com/Ning0612/ipmtool/internal/core/merge"
	"github.com/Ning0612/ipmtool/internal/domain"
)

// User-facing messages
const (
	MsgConflictsDetected = "Conflicts found between mods. Please set the priority order."
	MsgCompleted         = "Ipmtool .pak file has been created and mod_order updated."
	MsgCancelled         = "Process cancelled by user"
)

// Outcome is the result of Run or Resume: one of *NeedsInput, *Completed,
// *Failed or *Cancelled.
type Outcome interface {
	// Response converts the outcome to the host-facing result object
	Response() Response
	outcome()
}

// Response is the JSON result handed to the host
type Response struct {
	Success          bool                   `json:"success"`
	Message          string                 `json:"message"`
	CombinedMods     []string               `json:"combinedMods,omitempty"`
	LogContent       string                 `json:"logContent"`
	NeedsManualOrder bool                   `json:"needsManualOrder,omitempty"`
	Conflicts        []domain.ConflictGroup `json:"conflicts,omitempty"`
	ModDetails       []domain.ModDetail     `json:"modDetails,omitempty"`
	Cancelled        bool                   `json:"cancelled,omitempty"`
}

// NeedsInput pauses a manual merge until the caller supplies a mod order.
// Nothing was written to disk.
type NeedsInput struct {
	Pending *PendingRun
	Log     string
}

func (*NeedsInput) outcome() {}

// Response implements Outcome
func (n *NeedsInput) Response() Response {
	return Response{
		Success:          false,
		Message:          MsgConflictsDetected,
		LogContent:       n.Log,
		NeedsManualOrder: true,
		Conflicts:        n.Pending.Conflicts,
		ModDetails:       n.Pending.ModDetails,
	}
}

// Completed is a merge whose output was written
type Completed struct {
	RunID  string
	Merge  *merge.Result
	Output *assemble.Output
	// LogPath is empty when the run log could not be saved
	LogPath  string
	Checksum string
	Log      string
	// Summary is the report rendered as markdown
	Summary string
}

func (*Completed) outcome() {}

// Response implements Outcome
func (c *Completed) Response() Response {
	mods := c.Merge.ContributingMods
	if mods == nil {
		mods = []string{}
	}
	return Response{
		Success:      true,
		Message:      MsgCompleted,
		CombinedMods: mods,
		LogContent:   c.Log,
	}
}

// Failed is a run that stopped on a fatal error
type Failed struct {
	RunID   string
	Err     error
	Log     string
	Summary string
}

func (*Failed) outcome() {}

// Response implements Outcome
func (f *Failed) Response() Response {
	return Response{
		Success:    false,
		Message:    f.Err.Error(),
		LogContent: f.Log,
	}
}

// Error lets a Failed outcome be returned where an error is expected
func (f *Failed) Error() string {
	return fmt.Sprintf("run %s failed: %v", f.RunID, f.Err)
}

// Unwrap returns the underlying error
func (f *Failed) Unwrap() error {
	return f.Err
}

// Cancelled is a run stopped by the user before any output was written
type Cancelled struct {
	RunID     string
	Conflicts []domain.ConflictGroup
	Log       string
	Summary   string
}

func (*Cancelled) outcome() {}

// Response implements Outcome
func (c *Cancelled) Response() Response {
	return Response{
		Success:    false,
		Message:    MsgCancelled,
		LogContent: c.Log,
		Conflicts:  c.Conflicts,
		Cancelled:  true,
	}
}
