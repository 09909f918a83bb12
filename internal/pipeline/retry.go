package pipeline

import (
	"context"

	"tubego/internal/logging"
	"tubego/internal/registry"
	"tubego/internal/retrieval"
)

// Retry re-arms a failed task. A failed download is retrieved again with its
// recorded quality; a failed upload only repeats the upload. It returns the
// status the task re-entered.
func (o *Orchestrator) Retry(ctx context.Context, id string) (registry.Status, error) {
	if o.isRunning(id) {
		task, _ := o.reg.Get(id)
		return task.Status, errBusy(id)
	}
	status, err := o.reg.ResetForRetry(id)
	if err != nil {
		return status, err
	}
	logger := o.taskLogger(ctx, id, "retry")

	switch status {
	case registry.StatusStarting:
		task, err := o.reg.Get(id)
		if err != nil {
			return status, err
		}
		quality := task.Quality
		if quality == "" || quality == retrieval.QualityAsk {
			quality = retrieval.DefaultRetryQuality
		}
		logger.Info("retrying download", logging.String("quality", quality))
		return status, o.Start(id, quality)
	default:
		logger.Info("retrying upload")
		return status, o.StartUpload(id)
	}
}
