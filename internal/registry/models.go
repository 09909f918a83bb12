package registry

import (
	"slices"
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCancelling  Status = "cancelling"
	StatusCancelled   Status = "cancelled"
	StatusSuccess     Status = "success"
	StatusFailedDL    Status = "failed_dl"
	StatusCompleted   Status = "completed"
	StatusFailedUL    Status = "failed_ul"
)

// LocalSource marks tasks created from a file already present in the work dir.
const LocalSource = "local file"

// Progress phases recorded on a task.
const (
	PhaseDownload    = "download"
	PhasePostprocess = "postprocess"
	PhaseUpload      = "upload"
)

var allStatuses = []Status{
	StatusStarting,
	StatusDownloading,
	StatusProcessing,
	StatusCancelling,
	StatusCancelled,
	StatusSuccess,
	StatusFailedDL,
	StatusCompleted,
	StatusFailedUL,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var activeStatuses = map[Status]struct{}{
	StatusStarting:    {},
	StatusDownloading: {},
	StatusProcessing:  {},
}

// busyStatuses have a retrieval in flight that owns the task.
var busyStatuses = map[Status]struct{}{
	StatusDownloading: {},
	StatusProcessing:  {},
	StatusCancelling:  {},
}

var transitions = map[Status][]Status{
	StatusStarting:    {StatusDownloading, StatusCancelling, StatusFailedDL},
	StatusDownloading: {StatusProcessing, StatusSuccess, StatusFailedDL, StatusCancelling},
	StatusProcessing:  {StatusSuccess, StatusFailedDL, StatusCancelling},
	StatusCancelling:  {StatusCancelled},
	StatusSuccess:     {StatusCompleted, StatusFailedUL},
	StatusFailedUL:    {StatusSuccess, StatusFailedUL},
	StatusFailedDL:    {StatusStarting},
}

// Task is a snapshot of a task record.
type Task struct {
	ID              string
	Source          string
	Title           string
	Status          Status
	Phase           string
	Progress        string
	Quality         string
	ArtifactPath    string
	ArtifactName    string
	CancelRequested bool
	Uploading       bool
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanTransition reports whether the graph allows moving from one status to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// IsActiveStatus reports whether a status counts as an active task.
func IsActiveStatus(status Status) bool {
	_, ok := activeStatuses[status]
	return ok
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(status Status) bool {
	return len(transitions[status]) == 0
}

// IsRetriable reports whether ResetForRetry accepts the status.
func IsRetriable(status Status) bool {
	return status == StatusFailedDL || status == StatusFailedUL
}

// IsActive returns true when the task is starting or retrieving.
func (t Task) IsActive() bool {
	return IsActiveStatus(t.Status)
}

// HasArtifact reports whether a retrieved file is recorded.
func (t Task) HasArtifact() bool {
	return t.ArtifactPath != ""
}

// IsLocal reports whether the task was created from an existing file.
func (t Task) IsLocal() bool {
	return t.Source == LocalSource
}
