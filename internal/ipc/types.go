package ipc

import (
	"time"

	"tubego/internal/pipeline"
	"tubego/internal/preflight"
	"tubego/internal/registry"
)

// Task is the wire representation of a registry task.
type Task struct {
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	Phase           string    `json:"phase,omitempty"`
	Progress        string    `json:"progress"`
	Quality         string    `json:"quality,omitempty"`
	ArtifactPath    string    `json:"artifact_path,omitempty"`
	ArtifactName    string    `json:"artifact_name,omitempty"`
	CancelRequested bool      `json:"cancel_requested"`
	Uploading       bool      `json:"uploading"`
	LastError       string    `json:"last_error,omitempty"`
	Actions         []string  `json:"actions,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FromTask converts a registry snapshot, attaching the actions currently
// offered for it.
func FromTask(t registry.Task) Task {
	actions := pipeline.TaskActions(t)
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}
	return Task{
		ID:              t.ID,
		Source:          t.Source,
		Title:           t.Title,
		Status:          string(t.Status),
		Phase:           t.Phase,
		Progress:        t.Progress,
		Quality:         t.Quality,
		ArtifactPath:    t.ArtifactPath,
		ArtifactName:    t.ArtifactName,
		CancelRequested: t.CancelRequested,
		Uploading:       t.Uploading,
		LastError:       t.LastError,
		Actions:         names,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// Settled reports whether the daemon has no further work queued for the
// task without operator input.
func (t Task) Settled() bool {
	switch registry.Status(t.Status) {
	case registry.StatusCompleted, registry.StatusCancelled, registry.StatusFailedDL:
		return true
	case registry.StatusFailedUL:
		return !t.Uploading
	default:
		return false
	}
}

// CheckResult mirrors a preflight result.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func fromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and pipeline status information.
type StatusResponse struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	StartedAt      time.Time      `json:"started_at"`
	LockPath       string         `json:"lock_path"`
	LogPath        string         `json:"log_path"`
	TaskStats      map[string]int `json:"task_stats"`
	Workers        int            `json:"workers"`
	WorkersBusy    int            `json:"workers_busy"`
	JobsQueued     int            `json:"jobs_queued"`
	Language       string         `json:"language"`
	DefaultQuality string         `json:"default_quality"`
	ThresholdBytes int64          `json:"threshold_bytes"`
	Secondary      bool           `json:"secondary"`
	Checks         []CheckResult  `json:"checks"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// AddRequest submits a source. An empty quality uses the session default.
type AddRequest struct {
	Source  string `json:"source"`
	Quality string `json:"quality"`
}

// AnalyzeRequest fetches metadata for a source and registers a task that
// waits for a quality choice.
type AnalyzeRequest struct {
	Source string `json:"source"`
}

// AnalyzeResponse carries the new task and its metadata.
type AnalyzeResponse struct {
	Task      Task   `json:"task"`
	Duration  string `json:"duration"`
	Uploader  string `json:"uploader"`
	Thumbnail string `json:"thumbnail"`
}

// StartRequest starts an analyzed task with the given quality.
type StartRequest struct {
	ID      string `json:"id"`
	Quality string `json:"quality"`
}

// TaskRequest addresses a single task.
type TaskRequest struct {
	ID string `json:"id"`
}

// TaskResponse carries a single task snapshot.
type TaskResponse struct {
	Task Task `json:"task"`
}

// ListRequest filters the task listing by status.
type ListRequest struct {
	Statuses   []string `json:"statuses"`
	ActiveOnly bool     `json:"active_only"`
}

// ListResponse contains task entries in creation order.
type ListResponse struct {
	Tasks []Task `json:"tasks"`
}

// ClearRequest drops finished and failed task records.
type ClearRequest struct{}

// CountResponse reports how many entries an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// File describes a file waiting in the work directory.
type File struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
}

// FilesRequest lists the work directory.
type FilesRequest struct{}

// FilesResponse contains the listing; indexes are 1-based.
type FilesResponse struct {
	Files []File `json:"files"`
}

// FileRequest addresses a work-dir file by index or name.
type FileRequest struct {
	Ref string `json:"ref"`
}

// FileDeleteResponse names the removed file.
type FileDeleteResponse struct {
	Name string `json:"name"`
}

// CleanArchiveRequest empties the archive directory.
type CleanArchiveRequest struct{}

// SettingsRequest reads the session settings.
type SettingsRequest struct{}

// SetQualityRequest changes the default quality.
type SetQualityRequest struct {
	Quality string `json:"quality"`
}

// SetLanguageRequest changes the session language. With Detect set the
// language is matched loosely from a locale such as "es_MX.UTF-8".
type SetLanguageRequest struct {
	Language string `json:"language"`
	Detect   bool   `json:"detect"`
}

// SettingsResponse reports the session settings and the accepted values.
type SettingsResponse struct {
	Language       string   `json:"language"`
	DefaultQuality string   `json:"default_quality"`
	Languages      []string `json:"languages"`
	Qualities      []string `json:"qualities"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
