package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentSession creates the root span for one call session, from the
// socket start event to teardown.
func InstrumentSession(ctx context.Context, sessionID, callSID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "call.session",
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrCallSID, callSID),
		),
	)
}

// InstrumentTranscription creates a span covering one live transcription
// stream.
func InstrumentTranscription(ctx context.Context, provider string) (context.Context, trace.Span) {
	return StartSpan(ctx, "stt.session",
		trace.WithAttributes(attribute.String(AttrSTTProvider, provider)),
	)
}

// InstrumentUtterance creates a span for handling one finalized utterance.
func InstrumentUtterance(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "dialog.utterance",
		trace.WithAttributes(attribute.String(AttrSessionID, sessionID)),
	)
}

// InstrumentModelCall creates a span for one completion round trip.
// forcedFunction is empty when the model chooses freely.
func InstrumentModelCall(ctx context.Context, backend, forcedFunction string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(AttrLLMBackend, backend)}
	if forcedFunction != "" {
		attrs = append(attrs, attribute.String(AttrLLMForced, forcedFunction))
	}
	return StartSpan(ctx, "llm.complete", trace.WithAttributes(attrs...))
}

// SetFunctionCall records which function the model chose to call.
func SetFunctionCall(span trace.Span, name string) {
	span.SetAttributes(attribute.String(AttrLLMFunction, name))
}

// InstrumentSynthesis creates a span for one synthesis request.
func InstrumentSynthesis(ctx context.Context, provider string) (context.Context, trace.Span) {
	return StartSpan(ctx, "tts.synthesize",
		trace.WithAttributes(attribute.String(AttrTTSProvider, provider)),
	)
}

// SetSynthesisResult records whether the audio came from the cache and
// its size.
func SetSynthesisResult(span trace.Span, cacheHit bool, audioBytes int) {
	span.SetAttributes(
		attribute.Bool(AttrTTSCacheHit, cacheHit),
		attribute.Int(AttrTTSBytes, audioBytes),
	)
}

// InstrumentTransmit creates a span for the frame-paced transmission of
// one turn's audio.
func InstrumentTransmit(ctx context.Context, sessionID string, turn int64) (context.Context, trace.Span) {
	return StartSpan(ctx, "media.transmit",
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.Int64(AttrTurnIndex, turn),
		),
	)
}

// SetFramesSent records how many frames a transmission delivered.
func SetFramesSent(span trace.Span, frames int) {
	span.SetAttributes(attribute.Int(AttrFramesSent, frames))
}

// RecordError records an error on a span and marks the span failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
