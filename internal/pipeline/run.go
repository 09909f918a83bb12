package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"tubego/internal/fileutil"
	"tubego/internal/logging"
	"tubego/internal/notifications"
	"tubego/internal/registry"
	"tubego/internal/retrieval"
	"tubego/internal/services"
	"tubego/internal/textutil"
	"tubego/internal/workerpool"
)

// Analyze creates a task and fetches its metadata without downloading. On
// failure the task is removed again and a retrieval error is returned.
func (o *Orchestrator) Analyze(ctx context.Context, source string) (registry.Task, retrieval.Info, error) {
	retriever := o.retrievers()
	task, err := o.reg.Create(source, retriever)
	if err != nil {
		return registry.Task{}, retrieval.Info{}, err
	}
	logger := o.taskLogger(ctx, task.ID, "analyze")

	info, err := workerpool.Submit(o.pool, ctx, func(ctx context.Context) (retrieval.Info, error) {
		return retriever.FetchInfo(ctx, source)
	}).Wait(ctx)
	if err != nil {
		o.reg.Remove(task.ID)
		logger.Info("analysis failed", logging.Error(err))
		if services.Classify(err) == services.KindRetrieval {
			return registry.Task{}, retrieval.Info{}, err
		}
		return registry.Task{}, retrieval.Info{}, services.Wrap(services.ErrRetrieval, "analyze", "fetch info", "", err)
	}
	if err := o.reg.SetTitle(task.ID, info.Title); err != nil {
		return registry.Task{}, info, err
	}
	task, err = o.reg.Get(task.ID)
	logger.Info("analysis complete", logging.String("title", info.Title), logging.String("duration", info.Duration))
	return task, info, err
}

// Submit creates a task for source. When the effective quality is "ask" the
// task is only analyzed and waits for Start; otherwise it is started in the
// background.
func (o *Orchestrator) Submit(ctx context.Context, source, quality string) (registry.Task, error) {
	q, err := o.session.ResolveQuality(quality)
	if err != nil {
		return registry.Task{}, services.Wrap(services.ErrValidation, "submit", "quality", err.Error(), nil)
	}
	if q == retrieval.QualityAsk {
		task, _, err := o.Analyze(ctx, source)
		return task, err
	}
	task, err := o.reg.Create(source, o.retrievers())
	if err != nil {
		return registry.Task{}, err
	}
	if err := o.Start(task.ID, q); err != nil {
		return task, err
	}
	return o.reg.Get(task.ID)
}

// Start launches the retrieval for a starting task in the background. An
// empty quality falls back to the task's recorded quality, then the session
// default.
func (o *Orchestrator) Start(id, quality string) error {
	task, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if task.Status != registry.StatusStarting {
		return fmt.Errorf("%w: task %s is %s", registry.ErrInvalidTransition, id, task.Status)
	}
	q, err := o.effectiveQuality(task, quality)
	if err != nil {
		return err
	}
	if err := o.reg.SetQuality(id, q); err != nil {
		return err
	}
	return o.background(id, func(ctx context.Context) {
		_, _ = o.run(ctx, id, q)
	})
}

func (o *Orchestrator) effectiveQuality(task registry.Task, quality string) (string, error) {
	if quality == "" {
		quality = task.Quality
	}
	q, err := o.session.ResolveQuality(quality)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "start", "quality", err.Error(), nil)
	}
	if q == retrieval.QualityAsk {
		return "", services.Wrap(services.ErrValidation, "start", "quality", "choose a concrete quality for this task", nil)
	}
	return q, nil
}

// Run drives a starting task through retrieval and upload synchronously. The
// returned error covers only precondition failures; retrieval and upload
// failures are reported through the Outcome and the task status.
func (o *Orchestrator) Run(ctx context.Context, id, quality string) (Outcome, error) {
	task, err := o.reg.Get(id)
	if err != nil {
		return Outcome{TaskID: id}, err
	}
	q, err := o.effectiveQuality(task, quality)
	if err != nil {
		return Outcome{TaskID: id}, err
	}
	if !o.claim(id) {
		return Outcome{TaskID: id}, errBusy(id)
	}
	defer o.release(id)
	if err := o.reg.SetQuality(id, q); err != nil {
		return Outcome{TaskID: id}, err
	}
	return o.run(ctx, id, q)
}

func (o *Orchestrator) run(ctx context.Context, id, quality string) (Outcome, error) {
	logger := o.taskLogger(ctx, id, registry.PhaseDownload)

	task, err := o.reg.Get(id)
	if err != nil {
		return Outcome{TaskID: id}, err
	}
	req, err := retrieval.RequestFor(task.Source, quality)
	if err != nil {
		return Outcome{TaskID: id}, services.Wrap(services.ErrValidation, "run", "quality", err.Error(), nil)
	}
	retriever, err := o.reg.Retriever(id)
	if err != nil {
		return Outcome{TaskID: id}, err
	}

	if err := o.reg.UpdateStatus(id, registry.StatusDownloading, ""); err != nil {
		if current, getErr := o.reg.Get(id); getErr == nil && current.Status == registry.StatusCancelling {
			return o.finishCancel(ctx, id, "")
		}
		return Outcome{TaskID: id}, err
	}
	logger.Info("retrieval started", logging.String("quality", quality), logging.String("source", task.Source))

	sampler := logging.NewProgressSampler(5)
	onProgress := func(p retrieval.Progress) {
		if !o.reg.UpdateProgress(id, p.Phase, p.Percent) {
			return
		}
		if sampler.ShouldLog(p.Percent, p.Phase) {
			logger.Debug("retrieval progress", logging.String(logging.FieldPhase, p.Phase), logging.Float64("percent", p.Percent))
		}
	}
	token := o.reg.Token(id)

	path, err := workerpool.Submit(o.pool, ctx, func(ctx context.Context) (string, error) {
		return retriever.Retrieve(ctx, req, onProgress, token)
	}).Wait(ctx)

	if services.Classify(err) == services.KindCancelled || o.reg.CancelRequested(id) {
		return o.finishCancel(ctx, id, path)
	}
	if err != nil {
		return o.failDownload(ctx, id, err), nil
	}

	if err := o.reg.SetArtifact(id, path, filepath.Base(path)); err != nil {
		return o.failDownload(ctx, id, err), nil
	}
	if err := o.reg.UpdateStatus(id, registry.StatusSuccess, ""); err != nil {
		if o.reg.CancelRequested(id) {
			return o.finishCancel(ctx, id, "")
		}
		return Outcome{TaskID: id, ArtifactPath: path}, err
	}
	logger.Info("retrieval complete", logging.String("artifact", filepath.Base(path)))

	if _, err := o.reg.BeginUpload(id); err != nil {
		return Outcome{TaskID: id, Status: registry.StatusSuccess, ArtifactPath: path}, err
	}
	return o.deliver(ctx, id), nil
}

// finishCancel discards a retrieved file that was never recorded, then lets
// the registry mark the task cancelled and drop it.
func (o *Orchestrator) finishCancel(ctx context.Context, id, unrecordedPath string) (Outcome, error) {
	logger := o.taskLogger(ctx, id, registry.PhaseDownload)
	if unrecordedPath != "" {
		if err := fileutil.RemoveIfExists(unrecordedPath); err != nil {
			logging.WarnWithContext(logger, "failed to remove cancelled download", "cancel_cleanup_failed",
				logging.String("path", unrecordedPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the file from the work dir manually"),
			)
		}
	}
	task, err := o.reg.FinishCancel(id)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return Outcome{TaskID: id}, err
	}
	logger.Info("task cancelled")
	return Outcome{TaskID: id, Status: registry.StatusCancelled, ArtifactPath: task.ArtifactPath, Err: services.ErrCancelled}, nil
}

func (o *Orchestrator) failDownload(ctx context.Context, id string, cause error) Outcome {
	logger := o.taskLogger(ctx, id, registry.PhaseDownload)
	msg := cause.Error()
	if err := o.reg.UpdateStatus(id, registry.StatusFailedDL, msg); err != nil {
		logger.Error("failed to record download failure", logging.Error(err))
	}
	logger.Error("retrieval failed",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "download_failed"),
		logging.String(logging.FieldErrorHint, "retry the download or check the source URL"),
	)
	task, _ := o.reg.Get(id)
	o.publish(ctx, notifications.EventDownloadFailed, task, notifications.Payload{"error": textutil.ErrorPreview(msg)})
	return Outcome{TaskID: id, Status: registry.StatusFailedDL, Err: cause}
}
