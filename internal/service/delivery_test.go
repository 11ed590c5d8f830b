package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/recap/internal/domain"
)

func pendingArtifact(t *testing.T, f *fixture, evaluate bool) string {
	t.Helper()
	ctx := context.Background()
	f.meeting(t, "m-1", "log:alice", "log:bob")
	res, err := f.orch.Execute(ctx, "m-1", ExecuteOptions{})
	require.NoError(t, err)
	if evaluate {
		_, err = f.gate.Evaluate(ctx, res.ArtifactID)
		require.NoError(t, err)
	}
	return res.ArtifactID
}

func TestSend_ReadyArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := pendingArtifact(t, f, true)

	res, err := f.delivery.Send(ctx, id, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"log:alice", "log:bob"}, res.Delivered)
	assert.Equal(t, domain.DeliveryStatusDelivered, res.Artifact.Status)
	require.NotNil(t, res.Artifact.SentAt)

	msgs := f.inbox.Messages()
	require.Len(t, msgs, 4, "two on pipeline completion, two on send")
	assert.Contains(t, msgs[3].Body, "## Summary")
	assert.Contains(t, msgs[3].Subject, "Weekly sync m-1")

	last := res.Artifact.History[len(res.Artifact.History)-1]
	assert.Equal(t, domain.EventSent, last.Event)
	assert.False(t, strings.HasPrefix(last.Detail, "forced"))

	_, err = f.delivery.Send(ctx, id, false)
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
	_, err = f.delivery.Send(ctx, id, true)
	assert.ErrorIs(t, err, ErrAlreadyDelivered, "force never resends")
}

func TestSend_RequiresReadyVerdict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := pendingArtifact(t, f, false)

	_, err := f.delivery.Send(ctx, id, false)
	assert.ErrorIs(t, err, ErrNotReady)

	res, err := f.delivery.Send(ctx, id, true)
	require.NoError(t, err)
	last := res.Artifact.History[len(res.Artifact.History)-1]
	assert.True(t, strings.HasPrefix(last.Detail, "forced; "))
}

func TestSend_RequiresPendingReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	artifact := failedDelivery(t, f)

	_, err := f.delivery.Send(ctx, artifact.ID, true)
	assert.ErrorIs(t, err, ErrNotReady, "force does not bypass the status check")

	got, err := f.repos.Deliveries.GetByID(ctx, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusFailed, got.Status)
	assert.Nil(t, got.SentAt)
}

func TestSend_AllRecipientsFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := pendingArtifact(t, f, true)
	f.inbox.FailFor("alice", errors.New("down"))
	f.inbox.FailFor("bob", errors.New("down"))

	_, err := f.delivery.Send(ctx, id, false)
	require.Error(t, err)

	got, err := f.repos.Deliveries.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusReviewPending, got.Status)
	assert.NotNil(t, got.Error)
	assert.Nil(t, got.SentAt)
}
