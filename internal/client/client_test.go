package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/resumable_downloader/internal/content"
	"github.com/italolelis/resumable_downloader/internal/http/rest"
	"github.com/italolelis/resumable_downloader/internal/storage/sqlite"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

const demoSize = 5 * 1024 * 1024

func newRangeServer(t *testing.T) (*httptest.Server, []byte, transfer.File) {
	t.Helper()

	dir := t.TempDir()

	db, err := sqlite.InitDB(filepath.Join(dir, "files.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := content.NewStore(filepath.Join(dir, "uploads"), sqlite.NewFileRepository(db), 0, nil)
	require.NoError(t, err)

	f, _, err := store.Generate(context.Background(), "demo.bin", demoSize)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(store.Root(), "demo.bin"))
	require.NoError(t, err)

	srv := httptest.NewServer(rest.NewFilesHandler(store, 1, nil).Routes())
	t.Cleanup(srv.Close)

	return srv, data, f
}

func TestClient_AgainstServer(t *testing.T) {
	ctx := context.Background()
	srv, data, stored := newRangeServer(t)

	c := NewClient(srv.URL + "/")

	info, err := c.Info(ctx, "demo.bin")
	require.NoError(t, err)
	assert.Equal(t, stored.ContentHash, info.ContentHash)
	assert.Equal(t, int64(demoSize), info.SizeBytes)

	files, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "demo.bin", files[0].Name)

	chunk, err := c.FetchRange(ctx, "demo.bin", 2097152, 3145727)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data[2097152:3145728], chunk))

	size := int64(2048)
	res, err := c.Generate(ctx, transfer.GenerateRequest{Name: "small.bin", SizeBytes: &size})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, size, res.SizeBytes)
}

func TestClient_TypedErrors(t *testing.T) {
	ctx := context.Background()
	srv, _, _ := newRangeServer(t)

	c := NewClient(srv.URL)

	_, err := c.Info(ctx, "missing.bin")

	var nf *transfer.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing.bin", nf.Name)

	_, err = c.FetchRange(ctx, "missing.bin", 0, 10)
	assert.ErrorAs(t, err, &nf)

	_, err = c.FetchRange(ctx, "demo.bin", 6000000, 6000010)

	var rangeErr *transfer.RangeNotSatisfiableError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, int64(demoSize), rangeErr.Size)

	negative := int64(-1)
	_, err = c.Generate(ctx, transfer.GenerateRequest{Name: "bad.bin", SizeBytes: &negative})

	var invalid *transfer.InvalidArgumentError
	assert.ErrorAs(t, err, &invalid)
}

func TestClient_FetchRangeProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "range ignored",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("0123456789"))
			},
		},
		{
			name: "short body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Range", "bytes 0-9/100")
				w.WriteHeader(http.StatusPartialContent)
				w.Write([]byte("01234"))
			},
		},
		{
			name: "long body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Range", "bytes 0-9/100")
				w.WriteHeader(http.StatusPartialContent)
				w.Write([]byte("0123456789abc"))
			},
		},
		{
			name: "different range",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Range", "bytes 10-19/100")
				w.WriteHeader(http.StatusPartialContent)
				w.Write([]byte("0123456789"))
			},
		},
		{
			name: "missing content range",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusPartialContent)
				w.Write([]byte("0123456789"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL).FetchRange(context.Background(), "demo.bin", 0, 9)

			var protoErr *transfer.ProtocolError
			assert.ErrorAs(t, err, &protoErr)
		})
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=0-9", r.Header.Get("Range"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"disk unavailable","code":"internal"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchRange(context.Background(), "demo.bin", 0, 9)

	var transportErr *transfer.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusServiceUnavailable, transportErr.StatusCode)
	assert.Equal(t, "disk unavailable", transportErr.Message)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL).FetchRange(ctx, "demo.bin", 0, 9)

	var transportErr *transfer.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_EscapesNames(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()

		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Info(context.Background(), "my file?.bin")
	require.Error(t, err)

	assert.Equal(t, "/files/my%20file%3F.bin/info", gotPath)
}

func TestClient_ReservedCharactersRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, _, _ := newRangeServer(t)

	c := NewClient(srv.URL)

	for _, name := range []string{"a,b.bin", "a;b.bin", "a b.bin"} {
		t.Run(name, func(t *testing.T) {
			size := int64(64)

			res, err := c.Generate(ctx, transfer.GenerateRequest{Name: name, SizeBytes: &size})
			require.NoError(t, err)
			assert.Equal(t, name, res.Name)

			info, err := c.Info(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, name, info.Name)
			assert.Equal(t, res.ContentHash, info.ContentHash)

			chunk, err := c.FetchRange(ctx, name, 0, 9)
			require.NoError(t, err)
			assert.Len(t, chunk, 10)

			whole, err := c.FetchRange(ctx, name, 0, size-1)
			require.NoError(t, err)

			sum := sha256.Sum256(whole)
			assert.Equal(t, info.ContentHash, hex.EncodeToString(sum[:]))
			assert.Equal(t, whole[:10], chunk)
		})
	}
}
