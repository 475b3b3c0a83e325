package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStubTranscriber(generate func(ctx context.Context, data []byte, mimeType string) (string, error)) *GeminiTranscriber {
	return &GeminiTranscriber{
		httpc:    &http.Client{Timeout: 5 * time.Second},
		model:    "gemini-2.5-flash",
		maxBytes: 1 << 20,
		log:      zap.NewNop(),
		generate: generate,
	}
}

func TestSentinel(t *testing.T) {
	assert.Equal(t, "[transcription unavailable: fetch failed]", Sentinel("fetch failed"))
}

func TestTranscribeFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("fake-video-bytes"))
	}))
	defer srv.Close()

	var gotMime string
	tr := newStubTranscriber(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		gotMime = mimeType
		assert.Equal(t, []byte("fake-video-bytes"), data)
		return "buy now, guaranteed returns", nil
	})

	text, err := tr.Transcribe(context.Background(), srv.URL+"/v1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "buy now, guaranteed returns", text)
	assert.Equal(t, "video/mp4", gotMime)
}

func TestTranscribeFromLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("local-bytes"), 0o644))

	tr := newStubTranscriber(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		assert.Equal(t, []byte("local-bytes"), data)
		return "transcript", nil
	})

	text, err := tr.Transcribe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "transcript", text)
}

func TestTranscribeFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	tr := newStubTranscriber(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		t.Fatal("generate must not run when the fetch fails")
		return "", nil
	})

	_, err := tr.Transcribe(context.Background(), srv.URL+"/gone.mp4")
	var te *TranscriptionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "fetch", te.Stage)
}

func TestTranscribeOversizedMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2<<20))
	}))
	defer srv.Close()

	tr := newStubTranscriber(nil)
	tr.generate = func(ctx context.Context, data []byte, mimeType string) (string, error) {
		t.Fatal("generate must not run for oversized media")
		return "", nil
	}

	_, err := tr.Transcribe(context.Background(), srv.URL+"/huge.mp4")
	var te *TranscriptionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "fetch", te.Stage)
}

func TestTranscribeServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	tr := newStubTranscriber(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		return "", errors.New("model overloaded")
	})

	_, err := tr.Transcribe(context.Background(), srv.URL+"/v.mp4")
	var te *TranscriptionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "service", te.Stage)
	assert.Contains(t, te.Error(), "model overloaded")
}

func TestTranscribeCancellationIsNotATranscriptionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tr := newStubTranscriber(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		cancel()
		return "", ctx.Err()
	})

	_, err := tr.Transcribe(ctx, srv.URL+"/v.mp4")
	require.ErrorIs(t, err, context.Canceled)
	var te *TranscriptionError
	assert.False(t, errors.As(err, &te))
}
