package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/timmy/recap/internal/domain"
)

func TestPrintRun(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	run := &domain.QaRun{RunID: "qa-smoke-1", RunKind: domain.QaRunSmoke, Status: domain.QaRunFailed, Notes: "1 passed, 1 failed, 0 skipped; critical failures: GEN-001"}
	printRun(&buf, run, []domain.QaCheck{
		{Code: "CONF-001", Status: domain.QaCheckPassed, DurationMs: 3},
		{Code: "GEN-001", Critical: true, Status: domain.QaCheckFailed, ErrorDetail: "oracle down"},
	})

	out := buf.String()
	assert.Contains(t, out, "qa-smoke-1 (SMOKE)")
	assert.Contains(t, out, "* GEN-001")
	assert.Contains(t, out, "oracle down")
	assert.Contains(t, out, "critical failures: GEN-001")
}

func TestPrintHistory(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Contains(t, buf.String(), "No QA runs recorded")

	buf.Reset()
	printHistory(&buf, []domain.QaRun{{RunID: "qa-full-1", RunKind: domain.QaRunFull, Status: domain.QaRunSuccess, PassedCount: 12, SkippedCount: 2, StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}})
	assert.Contains(t, buf.String(), "qa-full-1")
	assert.Contains(t, buf.String(), "12 passed")
	assert.Contains(t, buf.String(), "2026-03-01 09:00:00")
}

func TestErrRunFailed(t *testing.T) {
	assert.EqualError(t, errRunFailed{runID: "qa-x"}, "QA run qa-x failed")
}
