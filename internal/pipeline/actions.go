package pipeline

import "tubego/internal/registry"

// Action is a follow-up the operator can take on a task.
type Action string

const (
	ActionCancel        Action = "cancel"
	ActionRetryDownload Action = "retry_download"
	ActionRetryUpload   Action = "retry_upload"
	ActionUploadNow     Action = "upload_now"
	ActionDelete        Action = "delete"
	ActionViewError     Action = "view_error"
)

var actionsByStatus = map[registry.Status][]Action{
	registry.StatusStarting:    {ActionCancel},
	registry.StatusDownloading: {ActionCancel},
	registry.StatusProcessing:  {ActionCancel},
	registry.StatusFailedDL:    {ActionRetryDownload, ActionDelete, ActionViewError},
	registry.StatusFailedUL:    {ActionRetryUpload, ActionDelete},
	registry.StatusSuccess:     {ActionUploadNow, ActionDelete},
	registry.StatusCompleted:   {ActionDelete},
}

// Actions returns the follow-ups offered for a status.
func Actions(status registry.Status) []Action {
	return append([]Action(nil), actionsByStatus[status]...)
}

// TaskActions is Actions adjusted for task state; an uploading task offers
// nothing until the upload returns.
func TaskActions(task registry.Task) []Action {
	if task.Uploading {
		return nil
	}
	return Actions(task.Status)
}
