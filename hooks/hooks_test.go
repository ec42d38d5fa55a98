package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Skryldev/jpeg-recompressor/core"
)

func TestInMemoryMetrics_Concurrent(t *testing.T) {
	m := NewInMemoryMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordProcessingTime(core.StageTransfer, 2*time.Millisecond)
			m.RecordThroughput(100)
			m.RecordMemory(30)
			m.RecordError(core.StageOpenOutput, "output")
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.StepCalls[core.StageTransfer] != 50 {
		t.Errorf("calls: got %d", snap.StepCalls[core.StageTransfer])
	}
	if snap.StepDurationsMs[core.StageTransfer] != 100 {
		t.Errorf("duration: got %d ms, want 100", snap.StepDurationsMs[core.StageTransfer])
	}
	if snap.TotalThroughputB != 5000 || snap.TotalMemoryB != 1500 {
		t.Errorf("totals: %+v", snap)
	}
	if snap.StepErrors[core.StageOpenOutput] != 50 || snap.ErrorCategories["output"] != 50 {
		t.Errorf("errors: %v / %v", snap.StepErrors, snap.ErrorCategories)
	}

	// Snapshots are copies.
	snap.StepCalls[core.StageTransfer] = 0
	if m.Snapshot().StepCalls[core.StageTransfer] != 50 {
		t.Error("snapshot aliases collector state")
	}
}

func TestMetricsHook(t *testing.T) {
	m := NewInMemoryMetrics()
	h := NewMetricsHook(m)
	res := &core.Result{OutputBytes: 4096}

	h.BeforeStep(context.Background(), core.StageTransfer, core.Request{})
	h.AfterStep(context.Background(), core.StageTransfer, res, time.Millisecond, nil)
	h.AfterStep(context.Background(), core.StageFinish, res, time.Millisecond, nil)
	h.AfterStep(context.Background(), core.StageOpenOutput, res, time.Millisecond, errors.New("denied"))

	snap := m.Snapshot()
	if snap.TotalThroughputB != 4096 {
		t.Errorf("throughput counted %d, want once at finish", snap.TotalThroughputB)
	}
	if snap.StepErrors[core.StageOpenOutput] != 1 {
		t.Errorf("errors: %v", snap.StepErrors)
	}
}

func TestLoggingHook_Zap(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(obsCore))
	h := NewLoggingHook(logger)

	req := core.Request{InputPath: "in.jpg", OutputPath: "out.jpg", Quality: 80}
	res := &core.Result{Input: "in.jpg", Layout: core.Layout{Width: 4, Height: 2, Components: 3, ColorSpace: core.ColorSpaceRGB}, Rows: 2}

	h.BeforeStep(context.Background(), core.StageTransfer, req)
	h.AfterStep(context.Background(), core.StageTransfer, res, time.Millisecond, nil)
	h.AfterStep(context.Background(), core.StageOpenOutput, res, time.Millisecond, errors.New("no such directory"))

	if logs.Len() != 3 {
		t.Fatalf("entries: got %d, want 3", logs.Len())
	}
	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errs) != 1 {
		t.Fatalf("error entries: got %d", len(errs))
	}
	fields := errs[0].ContextMap()
	if fields["stage"] != core.StageOpenOutput || fields["error"] != "no such directory" {
		t.Errorf("error fields: %v", fields)
	}
	done := logs.FilterMessage("recompress.stage.done").All()
	if len(done) != 1 || done[0].ContextMap()["rows"] != int64(2) {
		t.Errorf("done entry: %v", done)
	}
}

func TestBuildZap(t *testing.T) {
	for _, json := range []bool{true, false} {
		l, err := BuildZap("warn", json)
		if err != nil {
			t.Fatalf("BuildZap(json=%v): %v", json, err)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Error("info enabled at warn level")
		}
		if !l.Core().Enabled(zapcore.ErrorLevel) {
			t.Error("error disabled at warn level")
		}
	}
	if _, err := BuildZap("loud", false); err == nil {
		t.Error("expected error for unknown level")
	}
}
