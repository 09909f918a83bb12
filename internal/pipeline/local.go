package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"tubego/internal/fileutil"
	"tubego/internal/logging"
	"tubego/internal/registry"
	"tubego/internal/services"
	"tubego/internal/staging"
)

// LocalFiles lists the files waiting in the work directory and caches the
// listing in the session so later calls can refer to files by index.
func (o *Orchestrator) LocalFiles() ([]fileutil.FileEntry, error) {
	entries, err := fileutil.ListFiles(o.workDir, staging.PartialSuffixes()...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "files", "list work dir", o.workDir, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	o.session.SetFiles(names)
	return entries, nil
}

func (o *Orchestrator) resolveLocal(ref string) (string, error) {
	name, err := o.session.ResolveFile(ref)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "files", "resolve", err.Error(), nil)
	}
	path := filepath.Join(o.workDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "files", "resolve", name, err)
		}
		return "", services.Wrap(services.ErrConfiguration, "files", "resolve", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", services.Wrap(services.ErrValidation, "files", "resolve", name+" is not a regular file", nil)
	}
	return path, nil
}

// UploadLocal registers a work-dir file as a ready task and uploads it in
// the background. ref is a listing index or a file name.
func (o *Orchestrator) UploadLocal(ctx context.Context, ref string) (registry.Task, error) {
	path, err := o.resolveLocal(ref)
	if err != nil {
		return registry.Task{}, err
	}
	for _, t := range o.reg.List() {
		if t.ArtifactPath == path && (t.Uploading || t.Status == registry.StatusSuccess) {
			return t, errBusy(t.ID)
		}
	}
	task, err := o.reg.CreateFromFile(path)
	if err != nil {
		return registry.Task{}, err
	}
	o.taskLogger(ctx, task.ID, registry.PhaseUpload).Info("local file queued for upload", logging.String("file", task.ArtifactName))
	if err := o.StartUpload(task.ID); err != nil {
		return task, err
	}
	return o.reg.Get(task.ID)
}

// DeleteLocal removes a file from the work directory. Files that belong to a
// task with work in flight are refused.
func (o *Orchestrator) DeleteLocal(ref string) (string, error) {
	path, err := o.resolveLocal(ref)
	if err != nil {
		return "", err
	}
	for _, t := range o.reg.List() {
		if t.ArtifactPath == path && (t.Uploading || o.isRunning(t.ID)) {
			return "", errBusy(t.ID)
		}
	}
	if err := os.Remove(path); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "files", "delete", filepath.Base(path), err)
	}
	o.logger.Info("local file deleted", logging.String("file", filepath.Base(path)))
	if _, err := o.LocalFiles(); err != nil {
		o.logger.Debug("could not refresh file listing", logging.Error(err))
	}
	return filepath.Base(path), nil
}

// CleanArchive deletes every file in the archive directory.
func (o *Orchestrator) CleanArchive() (int, error) {
	return o.archiver.Clear()
}
