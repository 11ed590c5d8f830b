package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineRun_StepUpsertKeepsOneEntryPerName(t *testing.T) {
	run := NewPipelineRun("run-1", "meeting-1", RunKindDelivery, TriggerManual, 0)
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, run.StartStep("LOAD", now))
		require.NoError(t, run.CompleteStep("LOAD", "loaded", now))
	}
	require.NoError(t, run.StartStep("NORMALIZE", now))
	require.NoError(t, run.FailStep("NORMALIZE", errors.New("empty transcript"), now))
	require.NoError(t, run.StartStep("NORMALIZE", now))

	assert.Equal(t, []string{"LOAD", "NORMALIZE"}, run.Steps.Names())
	assert.Equal(t, 1, run.Attempt)

	step, ok := run.Steps.Get("NORMALIZE")
	require.True(t, ok)
	assert.Equal(t, StepStatusRunning, step.Status)
	assert.Nil(t, step.Error, "restarting a step clears its previous error")
}

func TestPipelineRun_RejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *PipelineRun) error
	}{
		{
			name: "complete without start",
			setup: func(r *PipelineRun) error {
				return r.CompleteStep("LOAD", "", time.Now())
			},
		},
		{
			name: "fail without start",
			setup: func(r *PipelineRun) error {
				return r.FailStep("LOAD", errors.New("boom"), time.Now())
			},
		},
		{
			name: "success to failed",
			setup: func(r *PipelineRun) error {
				now := time.Now()
				if err := r.StartStep("LOAD", now); err != nil {
					return err
				}
				if err := r.CompleteStep("LOAD", "", now); err != nil {
					return err
				}
				return r.FailStep("LOAD", errors.New("late"), now)
			},
		},
		{
			name: "write after finish",
			setup: func(r *PipelineRun) error {
				r.Finish(RunStatusSuccess, time.Second, "", nil)
				return r.StartStep("LOAD", time.Now())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewPipelineRun("run-1", "meeting-1", RunKindDelivery, TriggerManual, 1)
			err := tt.setup(run)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
		})
	}
}

func TestValidateStepTransition(t *testing.T) {
	assert.NoError(t, ValidateStepTransition(StepStatusPending, StepStatusRunning))
	assert.NoError(t, ValidateStepTransition(StepStatusRunning, StepStatusFailed))
	assert.NoError(t, ValidateStepTransition(StepStatusFailed, StepStatusRunning))
	assert.Error(t, ValidateStepTransition(StepStatusRunning, StepStatusPending))
	assert.Error(t, ValidateStepTransition("bogus", StepStatusRunning))
}

func TestPipelineRun_FinishAndProgress(t *testing.T) {
	run := NewPipelineRun("run-1", "meeting-1", RunKindDelivery, TriggerAPI, 2)
	now := time.Now()
	require.NoError(t, run.StartStep("LOAD", now))
	require.NoError(t, run.CompleteStep("LOAD", "ok", now))
	require.NoError(t, run.StartStep("NORMALIZE", now))
	require.NoError(t, run.FailStep("NORMALIZE", errors.New("no transcript"), now))

	run.Finish(RunStatusFailed, 1500*time.Millisecond, "failed at NORMALIZE", errors.New("no transcript"))

	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, int64(1500), run.DurationMs)
	require.NotNil(t, run.Error)
	assert.Equal(t, "no transcript", *run.Error)
	assert.Equal(t, map[string]StepStatus{
		"LOAD":      StepStatusSuccess,
		"NORMALIZE": StepStatusFailed,
	}, run.Progress())
}

func TestStepList_ScanRoundTripFromDriverString(t *testing.T) {
	var steps StepList
	require.NoError(t, steps.Scan(`[{"name":"LOAD","status":"success","output_summary":"ok"}]`))
	require.Len(t, steps, 1)
	assert.Equal(t, "LOAD", steps[0].Name)
	assert.Equal(t, StepStatusSuccess, steps[0].Status)

	require.NoError(t, steps.Scan(nil))
	assert.Empty(t, steps)
	assert.Error(t, steps.Scan(42))
}

func TestNewQaRunID(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 5, 0, time.UTC)
	assert.Equal(t, "QA-SMOKE-20261018-093005.000", NewQaRunID(QaRunSmoke, at))
}
