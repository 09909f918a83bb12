package pipeline

import (
	"context"
	"errors"
	"os"

	"tubego/internal/logging"
	"tubego/internal/notifications"
	"tubego/internal/registry"
	"tubego/internal/services"
	"tubego/internal/textutil"
	"tubego/internal/workerpool"
)

type sendResult struct {
	sender string
}

// Upload delivers a success or failed_ul task synchronously.
func (o *Orchestrator) Upload(ctx context.Context, id string) (Outcome, error) {
	if !o.claim(id) {
		return Outcome{TaskID: id}, errBusy(id)
	}
	defer o.release(id)
	if _, err := o.reg.BeginUpload(id); err != nil {
		return Outcome{TaskID: id}, err
	}
	return o.deliver(ctx, id), nil
}

// StartUpload delivers a success or failed_ul task in the background. A task
// whose previous goroutine still owns it is refused without touching its
// status or last error.
func (o *Orchestrator) StartUpload(id string) error {
	if !o.claim(id) {
		return errBusy(id)
	}
	if _, err := o.reg.BeginUpload(id); err != nil {
		o.release(id)
		return err
	}
	o.spawn(id, func(ctx context.Context) {
		o.deliver(ctx, id)
	})
	return nil
}

// deliver sends the artifact of a task already claimed with BeginUpload,
// archives it on success and records the outcome.
func (o *Orchestrator) deliver(ctx context.Context, id string) Outcome {
	logger := o.taskLogger(ctx, id, registry.PhaseUpload)
	task, err := o.reg.Get(id)
	if err != nil {
		return Outcome{TaskID: id, Err: err}
	}

	info, statErr := os.Stat(task.ArtifactPath)
	if statErr != nil {
		cause := services.Wrap(services.ErrArtifactMissing, "upload", "stat artifact", task.ArtifactPath, statErr)
		return o.failUpload(ctx, task, cause)
	}
	logger.Info("upload started",
		logging.String("artifact", task.ArtifactName),
		logging.Size("size", info.Size()),
	)

	res, err := workerpool.Submit(o.pool, ctx, func(ctx context.Context) (sendResult, error) {
		sender, err := o.uploader.Send(ctx, task.ArtifactPath, task.ArtifactName)
		return sendResult{sender: sender}, err
	}).Wait(ctx)
	if err != nil {
		if !errors.Is(err, services.ErrArtifactMissing) && !errors.Is(err, services.ErrTransport) {
			err = services.Wrap(services.ErrTransport, "upload", "send", "", err)
		}
		return o.failUpload(ctx, task, err)
	}

	finalPath := task.ArtifactPath
	if archived, err := o.archiver.Archive(task.ArtifactPath); err != nil {
		logging.WarnWithContext(logger, "archive failed after upload; artifact left in work dir", "archive_failed",
			logging.String("artifact", task.ArtifactPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the archive dir"),
			logging.String(logging.FieldImpact, "delivered file stays in the work dir"),
		)
	} else if err := o.reg.RelocateArtifact(id, archived); err != nil {
		logger.Error("failed to record archived path", logging.Error(err))
	} else {
		finalPath = archived
	}

	if err := o.reg.UpdateStatus(id, registry.StatusCompleted, ""); err != nil {
		logger.Error("failed to record completion", logging.Error(err))
		return Outcome{TaskID: id, Status: registry.StatusSuccess, ArtifactPath: finalPath, Sender: res.sender, Err: err}
	}
	logger.Info("task completed", logging.String("sender", res.sender), logging.String("artifact", finalPath))
	completed, _ := o.reg.Get(id)
	o.publish(ctx, notifications.EventTaskCompleted, completed, notifications.Payload{"sender": res.sender})
	return Outcome{TaskID: id, Status: registry.StatusCompleted, ArtifactPath: finalPath, Sender: res.sender}
}

func (o *Orchestrator) failUpload(ctx context.Context, task registry.Task, cause error) Outcome {
	logger := o.taskLogger(ctx, task.ID, registry.PhaseUpload)
	msg := cause.Error()
	if err := o.reg.UpdateStatus(task.ID, registry.StatusFailedUL, msg); err != nil {
		logger.Error("failed to record upload failure", logging.Error(err))
	}
	hint := "retry the upload"
	if errors.Is(cause, services.ErrArtifactMissing) {
		hint = "the file is gone from disk; delete the task and download again"
	}
	logger.Error("upload failed",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "upload_failed"),
		logging.String(logging.FieldErrorHint, hint),
	)
	o.publish(ctx, notifications.EventUploadFailed, task, notifications.Payload{"error": textutil.ErrorPreview(msg)})
	return Outcome{TaskID: task.ID, Status: registry.StatusFailedUL, ArtifactPath: task.ArtifactPath, Err: cause}
}
