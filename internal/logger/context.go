package logger

import (
	"context"
	"sync/atomic"
)

type ctxKey struct{}

var fallback atomic.Pointer[Logger]

func init() {
	fallback.Store(New(nil))
}

// Default returns the logger used when a context carries none.
// Returns:
//   - *Logger: the process-wide logger.
func Default() *Logger {
	return fallback.Load()
}

// SetDefault installs l as the process-wide logger. A nil l is ignored.
// Parameters:
//   - l: logger to install.
func SetDefault(l *Logger) {
	if l != nil {
		fallback.Store(l)
	}
}

// WithContext attaches the logger to ctx.
// Parameters:
//   - ctx: parent context.
//
// Returns:
//   - context.Context: child context carrying l.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or Default.
// Parameters:
//   - ctx: context, may be nil.
//
// Returns:
//   - *Logger: the context logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return l
		}
	}
	return Default()
}

// WithField adds one field to the context logger.
// Parameters:
//   - ctx: parent context.
//   - key: field name.
//   - value: field value.
//
// Returns:
//   - context.Context: child context whose logger carries the field.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// WithFields adds several fields to the context logger.
// Parameters:
//   - ctx: parent context.
//   - fields: fields to add.
//
// Returns:
//   - context.Context: child context whose logger carries the fields.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

// Trace names the unit of work a log line belongs to: an API request, a
// pipeline run and its step, or a QA run and its check.
type Trace struct {
	RequestID  string
	Component  string
	RunID      string
	SubjectID  string
	ArtifactID string
	Step       string
	QaRunID    string
	CheckCode  string
}

func (t Trace) fields() Fields {
	out := Fields{}
	for key, val := range map[string]string{
		FieldRequestID:  t.RequestID,
		FieldComponent:  t.Component,
		FieldRunID:      t.RunID,
		FieldSubjectID:  t.SubjectID,
		FieldArtifactID: t.ArtifactID,
		FieldStep:       t.Step,
		FieldQaRunID:    t.QaRunID,
		FieldCheckCode:  t.CheckCode,
	} {
		if val != "" {
			out[key] = val
		}
	}
	return out
}

// WithTrace attaches the non-empty trace identifiers to the context logger.
// Identifiers already on the logger are kept unless t overrides them.
// Parameters:
//   - ctx: parent context.
//   - t: identifiers to attach.
//
// Returns:
//   - context.Context: child context, or ctx itself when t is empty.
func WithTrace(ctx context.Context, t Trace) context.Context {
	fields := t.fields()
	if len(fields) == 0 {
		return ctx
	}
	return WithFields(ctx, fields)
}

// TraceFrom reads the trace identifiers back from the context logger.
// Parameters:
//   - ctx: context carrying a logger.
//
// Returns:
//   - Trace: identifiers found; missing ones are empty.
func TraceFrom(ctx context.Context) Trace {
	data := FromContext(ctx).Data
	get := func(key string) string {
		s, _ := data[key].(string)
		return s
	}
	return Trace{
		RequestID:  get(FieldRequestID),
		Component:  get(FieldComponent),
		RunID:      get(FieldRunID),
		SubjectID:  get(FieldSubjectID),
		ArtifactID: get(FieldArtifactID),
		Step:       get(FieldStep),
		QaRunID:    get(FieldQaRunID),
		CheckCode:  get(FieldCheckCode),
	}
}
