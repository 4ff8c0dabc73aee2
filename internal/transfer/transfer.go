package transfer

import (
	"context"
	"time"
)

// File is the metadata of one published blob.
type File struct {
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentHash string    `json:"contentHash"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LastByte returns the offset of the final byte, or -1 for an empty file.
func (f *File) LastByte() int64 {
	return f.SizeBytes - 1
}

// Fetcher is the client-side view of a range server.
type Fetcher interface {
	// Info returns the metadata of the named file.
	Info(ctx context.Context, name string) (*File, error)
	// FetchRange returns exactly the bytes [start, end] of the named file.
	FetchRange(ctx context.Context, name string, start, end int64) ([]byte, error)
}

// FileService is the full remote API exposed by the server.
type FileService interface {
	Fetcher

	List(ctx context.Context) ([]*File, error)
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// GenerateRequest asks the server to create a pseudorandom file.
// When SizeBytes is nil, SizeMB is used instead.
type GenerateRequest struct {
	Name      string `json:"name,omitempty"`
	SizeBytes *int64 `json:"sizeBytes,omitempty"`
	SizeMB    *int64 `json:"sizeMB,omitempty"`
}

// GenerateResult is the response to a generate call.
type GenerateResult struct {
	File

	Message string `json:"message"`
	Created bool   `json:"created"`
}
