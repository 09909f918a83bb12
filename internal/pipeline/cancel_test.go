package pipeline

import (
	"testing"

	"tubego/internal/logging"
	"tubego/internal/registry"
)

func TestFinishIdleCancelWhenRunFinishedFirst(t *testing.T) {
	reg := registry.New()
	o := &Orchestrator{reg: reg, logger: logging.NewNop()}
	task, err := reg.Create("http://example/video", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	flagged, err := reg.SetCancel(task.ID)
	if err != nil {
		t.Fatalf("SetCancel: %v", err)
	}
	// A run that claimed the task in between observes the flag and removes it.
	if _, err := reg.FinishCancel(task.ID); err != nil {
		t.Fatalf("FinishCancel: %v", err)
	}

	got, err := o.finishIdleCancel(flagged)
	if err != nil {
		t.Fatalf("expected cancellation to count as done, got %v", err)
	}
	if got.ID != task.ID || got.Status != registry.StatusCancelled {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestFinishIdleCancelRemovesTask(t *testing.T) {
	reg := registry.New()
	o := &Orchestrator{reg: reg, logger: logging.NewNop()}
	task, err := reg.Create("http://example/video", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	flagged, err := reg.SetCancel(task.ID)
	if err != nil {
		t.Fatalf("SetCancel: %v", err)
	}
	got, err := o.finishIdleCancel(flagged)
	if err != nil || got.Status != registry.StatusCancelled {
		t.Fatalf("finishIdleCancel = %+v, %v", got, err)
	}
	if reg.Len() != 0 {
		t.Fatal("cancelled task still registered")
	}
}
