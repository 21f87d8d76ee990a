package ledger

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jmerrifield20/bharatchain/internal/ledger"

// WriteObserver is an optional callback invoked after every WriteBlock.
type WriteObserver func(blockType string, elapsed time.Duration, err error)

// instrumented wraps a Ledger with tracing spans and a write observer.
type instrumented struct {
	Ledger
	tracer  trace.Tracer
	observe WriteObserver
}

// Instrument returns l wrapped with OpenTelemetry spans around writes and
// lookups. observe may be nil.
func Instrument(l Ledger, observe WriteObserver) Ledger {
	return &instrumented{
		Ledger:  l,
		tracer:  otel.Tracer(tracerName),
		observe: observe,
	}
}

func (i *instrumented) WriteBlock(ctx context.Context, blockType string, payload map[string]any) (*Block, error) {
	ctx, span := i.tracer.Start(ctx, "ledger.WriteBlock",
		trace.WithAttributes(attribute.String("ledger.block_type", blockType)),
	)
	defer span.End()

	start := time.Now()
	b, err := i.Ledger.WriteBlock(ctx, blockType, payload)
	if i.observe != nil {
		i.observe(blockType, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("ledger.sequence", int64(b.Sequence)),
		attribute.String("ledger.hash", b.Hash),
	)
	return b, nil
}

func (i *instrumented) GetBlock(ctx context.Context, hash string) (*Block, error) {
	ctx, span := i.tracer.Start(ctx, "ledger.GetBlock")
	defer span.End()
	b, err := i.Ledger.GetBlock(ctx, hash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return b, err
}

// Verify implements Verifier by delegating to the wrapped backend.
func (i *instrumented) Verify(ctx context.Context) error {
	ctx, span := i.tracer.Start(ctx, "ledger.Verify")
	defer span.End()
	err := VerifyChain(ctx, i.Ledger)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
