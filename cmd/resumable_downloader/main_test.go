package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/italolelis/resumable_downloader/internal/logctx"
)

func TestRequestContext_SurvivesShutdownSignal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(logctx.WithLogger(context.Background(), logger))

	base := requestContext(ctx)(nil)

	cancel()

	assert.NoError(t, base.Err())
	assert.Same(t, logger, logctx.LoggerFromContext(base))
}
