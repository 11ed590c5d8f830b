package logger

import (
	"context"
	"time"
)

// Record is one log line's metric fields, emitted on top of the trace
// fields of the context logger. Records are values; every setter returns a
// copy, so a partially built Record can be shared.
//
//	logger.Metrics(logger.Fields{logger.FieldStep: "GENERATE"}).
//		Took(elapsed).Status("success").Info(ctx, "Step finished")
type Record struct {
	fields Fields
}

// Metrics starts a Record with the given fields.
// Parameters:
//   - fields: initial metric fields; the map is copied.
//
// Returns:
//   - Record: the new record.
func Metrics(fields Fields) Record {
	return Record{}.With(fields)
}

// With returns a copy of r with fields merged in; later keys win.
// Parameters:
//   - fields: fields to merge.
//
// Returns:
//   - Record: the extended copy.
func (r Record) With(fields Fields) Record {
	merged := make(Fields, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return Record{fields: merged}
}

// Took records an elapsed time as whole milliseconds.
// Parameters:
//   - d: elapsed time.
//
// Returns:
//   - Record: the extended copy.
func (r Record) Took(d time.Duration) Record {
	return r.With(Fields{FieldDurationMs: d.Milliseconds()})
}

// Status records the outcome of the unit of work.
// Parameters:
//   - status: outcome, such as a step, run or verdict status.
//
// Returns:
//   - Record: the extended copy.
func (r Record) Status(status string) Record {
	return r.With(Fields{FieldStatus: status})
}

// Info emits the record at Info level.
func (r Record) Info(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(r.fields).Infof(format, args...)
}

// Warn emits the record at Warn level.
func (r Record) Warn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(r.fields).Warnf(format, args...)
}

// Error emits the record at Error level.
func (r Record) Error(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(r.fields).Errorf(format, args...)
}
