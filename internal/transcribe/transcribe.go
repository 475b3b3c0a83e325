// Package transcribe turns captured video into text for the analysis chain.
// Transcription failures degrade, they never block: callers substitute a
// sentinel transcript and the analysis proceeds on what remains.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// TranscriptionError reports a failed transcription attempt. Stage is
// "fetch" when the media could not be retrieved and "service" when the
// transcription backend failed.
type TranscriptionError struct {
	Stage   string
	Locator string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription %s failed for %s: %v", e.Stage, e.Locator, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Sentinel renders the placeholder transcript recorded when transcription
// is unavailable. The reason stays short and human readable.
func Sentinel(reason string) string {
	return fmt.Sprintf("[transcription unavailable: %s]", reason)
}

const transcriptionPrompt = "Transcribe all spoken words in this video verbatim. " +
	"Return only the transcript text, without commentary or timestamps. " +
	"If nothing is spoken, return an empty response."

// Transcriber converts a media locator into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, locator string) (string, error)
}

// GeminiTranscriber fetches the media and transcribes it through Gemini.
type GeminiTranscriber struct {
	httpc    *http.Client
	model    string
	maxBytes int64
	log      *zap.Logger

	// generate sends fetched media to the transcription backend.
	// Swapped in tests.
	generate func(ctx context.Context, data []byte, mimeType string) (string, error)
}

// NewGeminiTranscriber creates a transcriber backed by Gemini.
func NewGeminiTranscriber(client *genai.Client, model string, log *zap.Logger) *GeminiTranscriber {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	t := &GeminiTranscriber{
		httpc:    &http.Client{Timeout: 2 * time.Minute},
		model:    model,
		maxBytes: 64 << 20,
		log:      log,
	}
	t.generate = func(ctx context.Context, data []byte, mimeType string) (string, error) {
		contents := []*genai.Content{
			genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromBytes(data, mimeType),
				genai.NewPartFromText(transcriptionPrompt),
			}, genai.RoleUser),
		}
		resp, err := client.Models.GenerateContent(ctx, t.model, contents, nil)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Text()), nil
	}
	return t
}

// Transcribe fetches the media behind locator and returns its transcript.
// Context cancellation propagates as-is; every other failure comes back as
// a *TranscriptionError.
func (t *GeminiTranscriber) Transcribe(ctx context.Context, locator string) (string, error) {
	data, mimeType, err := t.fetch(ctx, locator)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TranscriptionError{Stage: "fetch", Locator: locator, Err: err}
	}

	t.log.Debug("media fetched for transcription",
		zap.String("locator", locator),
		zap.Int("bytes", len(data)),
		zap.String("mime", mimeType))

	text, err := t.generate(ctx, data, mimeType)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TranscriptionError{Stage: "service", Locator: locator, Err: err}
	}
	return text, nil
}

func (t *GeminiTranscriber) fetch(ctx context.Context, locator string) ([]byte, string, error) {
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		data, err := os.ReadFile(locator)
		if err != nil {
			return nil, "", err
		}
		return data, mimeTypeFor(locator), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > t.maxBytes {
		return nil, "", fmt.Errorf("media exceeds %d byte limit", t.maxBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimeTypeFor(locator)
	}
	return data, mimeType, nil
}

func mimeTypeFor(locator string) string {
	ext := path.Ext(strings.SplitN(locator, "?", 2)[0])
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "video/mp4"
}
