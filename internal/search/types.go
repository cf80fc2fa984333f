package search

import (
	"fmt"

	"github.com/fyrsmithlabs/wsgrep/internal/scanner"
	"github.com/fyrsmithlabs/wsgrep/internal/workspace"
)

// Request is one immutable search request.
type Request struct {
	Path          string `json:"path"`
	Pattern       string `json:"pattern"`
	IsRegex       bool   `json:"is_regex"`
	CaseSensitive bool   `json:"case_sensitive"`
}

// Status is the externally observable state of the coordinator.
type Status int

const (
	StatusIdle Status = iota
	StatusValidating
	StatusAuthenticating
	StatusScanning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusValidating:
		return "validating"
	case StatusAuthenticating:
		return "authenticating"
	case StatusScanning:
		return "scanning"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether s ends a request. A recoverable failure still
// counts as terminal for observers; whether Retry is admissible is carried
// separately on the snapshot.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Reason is the failure vocabulary surfaced to the presentation layer.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMissingPath        Reason = "missing_path"
	ReasonInvalidPath        Reason = "invalid_path"
	ReasonMissingPattern     Reason = "missing_pattern"
	ReasonInvalidPattern     Reason = "invalid_pattern"
	ReasonNotLoggedIn        Reason = "not_logged_in"
	ReasonSessionExpired     Reason = "session_expired"
	ReasonClientRootConflict Reason = "client_root_conflict"
	ReasonCancelled          Reason = "cancelled"

	// ReasonBackendError covers backend failures outside the request's
	// control, e.g. the p4 binary missing.
	ReasonBackendError Reason = "backend_error"
)

// Recoverable reports whether a Retry is admissible for this reason: the
// expected remedy is an out-of-band login, not an edited request.
func (r Reason) Recoverable() bool {
	return r == ReasonNotLoggedIn || r == ReasonSessionExpired
}

// Transition is one status change notification.
type Transition struct {
	RequestID string `json:"request_id"`
	Status    Status `json:"status"`
	Reason    Reason `json:"reason,omitempty"`
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	RequestID string
	Status    Status
	Reason    Reason

	// Retryable is true only for a failure that admits Retry.
	Retryable bool

	// Workspace is set once validation succeeded.
	Workspace *workspace.Info

	// Result is set only when Status is StatusCompleted.
	Result *scanner.Result
}
