package transfer

import (
	"context"

	"github.com/italolelis/resumable_downloader/internal/telemetry"
)

// InstrumentedFetcher wraps a Fetcher with telemetry.
type InstrumentedFetcher struct {
	fetcher   Fetcher
	telemetry *telemetry.Telemetry
}

// NewInstrumentedFetcher creates a new instrumented fetcher.
func NewInstrumentedFetcher(fetcher Fetcher, tel *telemetry.Telemetry) *InstrumentedFetcher {
	return &InstrumentedFetcher{
		fetcher:   fetcher,
		telemetry: tel,
	}
}

// Info retrieves file metadata with telemetry.
func (f *InstrumentedFetcher) Info(ctx context.Context, name string) (*File, error) {
	var result *File

	err := f.telemetry.InstrumentOperation(ctx, "file_info", "client", func(ctx context.Context) error {
		var err error

		result, err = f.fetcher.Info(ctx, name)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// FetchRange fetches one byte range with telemetry.
func (f *InstrumentedFetcher) FetchRange(ctx context.Context, name string, start, end int64) ([]byte, error) {
	var result []byte

	_, err := f.telemetry.InstrumentChunkFetch(ctx, func(ctx context.Context) (int64, error) {
		var err error

		result, err = f.fetcher.FetchRange(ctx, name, start, end)

		return int64(len(result)), err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
