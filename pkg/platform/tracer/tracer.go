// Package tracer is a small tracing abstraction over OpenTelemetry.
//
// Components depend on the Tracer interface only. NoopTracer serves tests and
// OTelTracer is wired in the server.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

func Uint64(key string, value uint64) Attribute { return Attribute{Key: key, Value: int64(value)} }

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanProjectorRebuild    = "projector.rebuild"
	SpanProjectorRestore    = "projector.restore"
	SpanProjectorCheckpoint = "projector.checkpoint"
	SpanProjectorRewind     = "projector.rewind"
	SpanIssuanceMint        = "issuance.mint"
	SpanIssuanceReconcile   = "issuance.reconcile"
	SpanMetadataFetch       = "metadata.fetch"
	SpanMetadataPut         = "metadata.put"
)

// Attribute keys.
const (
	AttrCursor    = "projection.cursor"
	AttrEvents    = "projection.events"
	AttrRequestID = "request.id"
	AttrURI       = "metadata.uri"
	AttrOutcome   = "outcome"
)
