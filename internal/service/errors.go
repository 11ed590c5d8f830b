package service

import "errors"

var (
	// ErrSubjectBusy is returned when another run holds the subject's lock.
	ErrSubjectBusy = errors.New("subject is already being processed")
	// ErrAlreadyDelivered is returned for artifacts in a terminal success state.
	ErrAlreadyDelivered = errors.New("artifact already delivered")
	// ErrRetryExhausted is returned when the artifact used up its attempts.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	// ErrRetryTooSoon is returned when the previous attempt is within the backoff window.
	ErrRetryTooSoon = errors.New("retry requested before backoff elapsed")
	// ErrNotReady is returned when sending an artifact the gate has not cleared.
	ErrNotReady = errors.New("artifact is not ready to send")
	// ErrNoRecipients is returned when there is nobody to notify.
	ErrNoRecipients = errors.New("no recipients")
	// ErrEmptyTranscript is returned when normalization leaves nothing to summarize.
	ErrEmptyTranscript = errors.New("transcript is empty")
	// ErrEmptyContent is returned when the oracle generates an empty report.
	ErrEmptyContent = errors.New("generated report is empty")
)
