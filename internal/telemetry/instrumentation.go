package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY:
//
// Attributes attached to spans and metrics must come from a bounded set.
// File names, byte offsets, request IDs and error messages are unbounded and
// belong in logs, never in attributes.
//
// SAFE attributes:
// - Operation types ("get_file", "insert_file", "fetch_range")
// - Status values ("success", "error", "completed", "paused", "failed")
// - Component names ("catalog", "content_store", "downloader")
// - Request kinds ("full", "partial", "unsatisfiable", "not_found")

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		// error.message is left out on purpose, the full error is in the span status.
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentStoreOperation instruments catalog operations.
func (t *Telemetry) InstrumentStoreOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "catalog_"+operation, "catalog", fn)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordStoreOperation(operation, status, duration)

	return err
}

// InstrumentGeneration instruments the creation of a new blob.
func (t *Telemetry) InstrumentGeneration(ctx context.Context, sizeBytes int64, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "generate_file", "content_store", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordGeneration(ctx, status, sizeBytes, time.Since(start))

	return err
}

// InstrumentChunkFetch instruments a single client range fetch. fn returns the
// number of bytes received.
func (t *Telemetry) InstrumentChunkFetch(ctx context.Context, fn func(ctx context.Context) (int64, error)) (int64, error) {
	if t == nil {
		return fn(ctx)
	}

	var received int64

	start := time.Now()
	err := t.InstrumentOperation(ctx, "fetch_range", "downloader", func(ctx context.Context) error {
		var err error

		received, err = fn(ctx)

		return err
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordChunkFetch(ctx, status, received, time.Since(start))

	return received, err
}

// InstrumentDownload wraps one session run. The outcome label is derived by
// the caller through classify so paused runs are not counted as errors.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn InstrumentedFunc, classify func(error) string) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveDownloads()
	defer t.DecrementActiveDownloads()

	var err error

	_ = t.InstrumentOperation(ctx, "download", "downloader", func(ctx context.Context) error {
		err = fn(ctx)

		if classify(err) == "failed" {
			return err
		}

		return nil
	})

	t.RecordDownload(ctx, classify(err), time.Since(start))

	return err
}
