package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/logger"
	"github.com/timmy/recap/internal/notify"
	"github.com/timmy/recap/internal/prompts"
	"github.com/timmy/recap/internal/repository"
)

// SendResult reports a delivery send.
type SendResult struct {
	Artifact     *domain.DeliveryArtifact `json:"artifact"`
	Delivered    []string                 `json:"delivered"`
	Failed       map[string]string        `json:"failed,omitempty"`
	Notification string                   `json:"notification"`
}

// DeliveryService sends gated reports to their recipients.
type DeliveryService struct {
	deliveries *repository.DeliveryRepository
	meetings   *repository.MeetingRepository
	notifier   notify.Sender
	now        func() time.Time
}

// NewDeliveryService creates a new delivery service.
// Parameters:
//   - repos: repository set.
//   - notifier: sender used for recipient fan-out.
//
// Returns:
//   - *DeliveryService: initialized service.
func NewDeliveryService(repos *repository.Repositories, notifier notify.Sender) *DeliveryService {
	return &DeliveryService{
		deliveries: repos.Deliveries,
		meetings:   repos.Meetings,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Send delivers the report to every recipient. The artifact must be
// awaiting review, and unless force is set its latest verdict must be
// READY_TO_SEND.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifactID: artifact to deliver.
//   - force: skip the READY_TO_SEND verdict requirement.
//
// Returns:
//   - *SendResult: per-recipient outcome and the updated artifact.
//   - error: ErrAlreadyDelivered, ErrNotReady, ErrNoRecipients, or a fan-out error when every recipient failed.
func (s *DeliveryService) Send(ctx context.Context, artifactID string, force bool) (*SendResult, error) {
	artifact, err := s.deliveries.GetByID(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", artifactID, err)
	}
	if artifact.Status.IsDelivered() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDelivered, artifact.ID)
	}
	if artifact.Status != domain.DeliveryStatusReviewPending {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, artifact.Status)
	}
	if !force && artifact.QualityVerdict != domain.VerdictReadyToSend {
		verdict := string(artifact.QualityVerdict)
		if verdict == "" {
			verdict = "not evaluated"
		}
		return nil, fmt.Errorf("%w: verdict is %s", ErrNotReady, verdict)
	}
	if len(artifact.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	title := artifact.SubjectRef
	if meeting, err := s.meetings.GetByID(ctx, artifact.SubjectRef); err == nil {
		title = meeting.Title
	}
	body := artifact.Content
	if artifact.ExternalURL != "" {
		body = prompts.ReportReadyBody(title, artifact.ExternalURL) + "\n\n" + body
	}

	res := notify.FanOut(ctx, s.notifier, artifact.Recipients, prompts.ReportReadySubject(title, artifact.Version), body)
	if res.AllFailed() {
		err := fmt.Errorf("send failed for every recipient: %s", res.Summary())
		artifact.SetError(err)
		artifact.Append(domain.HistoryEntry{At: s.now(), Event: domain.EventFailed, Detail: res.Summary()})
		if uerr := s.deliveries.Update(ctx, artifact); uerr != nil {
			logger.FromContext(ctx).WithError(uerr).Warn("Failed to record send failure")
		}
		return nil, err
	}

	now := s.now()
	artifact.Status = domain.DeliveryStatusDelivered
	artifact.SentAt = &now
	artifact.SetError(nil)
	detail := res.Summary()
	if force && artifact.QualityVerdict != domain.VerdictReadyToSend {
		detail = "forced; " + detail
	}
	artifact.Append(domain.HistoryEntry{At: now, Event: domain.EventSent, Detail: detail})
	if err := s.deliveries.Update(ctx, artifact); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}

	logger.Metrics(logger.Fields{logger.FieldArtifactID: artifact.ID, logger.FieldCount: len(res.Delivered)}).
		Info(ctx, "Report delivered")
	return &SendResult{
		Artifact:     artifact,
		Delivered:    res.Delivered,
		Failed:       res.Failed,
		Notification: res.Summary(),
	}, nil
}
