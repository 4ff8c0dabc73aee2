package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/resumable_downloader/internal/downloader"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordNotifier(srv.URL).Notify(context.Background(), "hello"))
	assert.Equal(t, map[string]string{"content": "hello"}, got)
}

func TestDiscordNotifier_Errors(t *testing.T) {
	assert.Error(t, NewDiscordNotifier("").Notify(context.Background(), "hello"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordNotifier(srv.URL).Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

type recordingNotifier struct {
	messages []string
	err      error
}

func (r *recordingNotifier) Notify(_ context.Context, content string) error {
	r.messages = append(r.messages, content)

	return r.err
}

func TestSessionObserver(t *testing.T) {
	rec := &recordingNotifier{}
	obs := SessionObserver(context.Background(), rec)

	obs.OnProgress(downloader.Progress{Name: "demo.bin", Status: downloader.StatusRunning, TotalSize: 1024})
	obs.OnProgress(downloader.Progress{Name: "demo.bin", Status: downloader.StatusPaused, TotalSize: 1024})
	obs.OnProgress(downloader.Progress{Name: "demo.bin", Status: downloader.StatusCompleted, BytesTransferred: 1024, TotalSize: 1024})
	obs.OnProgress(downloader.Progress{Name: "other.bin", Status: downloader.StatusFailed, BytesTransferred: 512, TotalSize: 1024, Err: errors.New("boom")})

	require.Len(t, rec.messages, 2)
	assert.Contains(t, rec.messages[0], "Download finished: demo.bin (1.0 KiB)")
	assert.Contains(t, rec.messages[1], "Download failed: other.bin at 512 B of 1.0 KiB: boom")
}

func TestSessionObserver_NotifyErrorIgnored(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("webhook down")}
	obs := SessionObserver(context.Background(), rec)

	assert.NotPanics(t, func() {
		obs.OnProgress(downloader.Progress{Name: "demo.bin", Status: downloader.StatusCompleted})
	})
	assert.Len(t, rec.messages, 1)
}
