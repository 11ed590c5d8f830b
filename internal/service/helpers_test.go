package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/lock"
	"github.com/timmy/recap/internal/notify"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/storage"
)

// replayOracle answers report prompts and schema (coherence) prompts from
// recorded responses.
type replayOracle struct {
	mu        sync.Mutex
	report    string
	reportErr error
	coherence string
	cohErr    error
	block     bool
	prompts   []string
}

func (o *replayOracle) Submit(ctx context.Context, prompt string, schema *Schema) (string, error) {
	o.mu.Lock()
	o.prompts = append(o.prompts, prompt)
	block, report, reportErr, coherence, cohErr := o.block, o.report, o.reportErr, o.coherence, o.cohErr
	o.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if schema != nil {
		return coherence, cohErr
	}
	return report, reportErr
}

func (o *replayOracle) promptCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.prompts)
}

type replayChecker struct {
	matches []LanguageMatch
	err     error
}

func (c *replayChecker) Check(ctx context.Context, text string) ([]LanguageMatch, error) {
	return c.matches, c.err
}

type replayTranscriber struct {
	text   string
	format string
}

func (t *replayTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	t.format = format
	return t.text, nil
}

// brokenStorage fails every upload.
type brokenStorage struct {
	storage.ObjectStorage
}

func (brokenStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return errors.New("bucket unavailable")
}

func coherenceJSON(score string) string {
	return `{"score": ` + score + `, "issues": []}`
}

// buildReport renders a Markdown report with one section per heading, the
// optional tail line, padded with filler to exactly words words.
func buildReport(words int, headings []string, tail string) string {
	parts := make([]string, 0, len(headings)*2+1)
	for _, h := range headings {
		parts = append(parts, "## "+h, "The team discussed the plan.")
	}
	if tail != "" {
		parts = append(parts, tail)
	}
	text := strings.Join(parts, "\n\n")
	if missing := words - WordCount(text); missing > 0 {
		text += "\n\n" + strings.TrimSpace(strings.Repeat("detail ", missing))
	}
	return text
}

var (
	allTerms      = []string{"Summary", "Decisions", "Action Items", "Next Steps"}
	signature     = config.DefaultQualityConfig().SignatureMarker
	perfectReport = buildReport(600, allTerms, signature)
)

type fixture struct {
	repos    *repository.Repositories
	store    storage.ObjectStorage
	oracle   *replayOracle
	checker  *replayChecker
	inbox    *notify.LogSender
	router   *notify.Router
	locker   *lock.MemoryLocker
	orch     *Orchestrator
	gate     *QualityGate
	delivery *DeliveryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		repos:   repository.New(db),
		store:   storage.NewMemoryStorage("https://cdn.test"),
		oracle:  &replayOracle{report: perfectReport, coherence: coherenceJSON("1.0")},
		checker: &replayChecker{},
		inbox:   notify.NewLogSender(),
		locker:  lock.NewMemoryLocker(),
	}
	f.router = notify.NewRouter(nil).Register(notify.ChannelLog, f.inbox)
	f.rebuild(OrchestratorConfig{SignatureMarker: signature})
	return f
}

func (f *fixture) rebuild(cfg OrchestratorConfig) {
	f.orch = NewOrchestrator(OrchestratorDeps{
		Repos:    f.repos,
		Storage:  f.store,
		Oracle:   f.oracle,
		Notifier: f.router,
		Locker:   f.locker,
	}, cfg)
	f.gate = NewQualityGate(f.repos, f.checker, f.oracle, config.DefaultQualityConfig(), nil)
	f.delivery = NewDeliveryService(f.repos, f.router)
}

func (f *fixture) meeting(t *testing.T, id string, participants ...string) *domain.Meeting {
	t.Helper()
	m := &domain.Meeting{
		ID:           id,
		Title:        "Weekly sync " + id,
		Transcript:   "SPEAKER_01: we ship on friday\nspeaker 2 : agreed",
		Participants: participants,
	}
	require.NoError(t, f.repos.Meetings.Create(context.Background(), m))
	return m
}
