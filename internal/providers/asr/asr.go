// Package asr defines the speech-transcription contract and its
// implementations.
package asr

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// Options tune a transcription request.
type Options struct {
	// LanguageHint is a BCP-47-ish language code ("en", "ko").
	LanguageHint string
	// MediaType is the audio MIME type, derived from the object key.
	MediaType string
	// Diarize requests speaker labels when the backend supports them.
	Diarize bool
}

// Result is the transcription output.
type Result struct {
	Segments   []model.Segment
	Language   string
	DurationMs int64
}

// Transcriber converts stored audio into timestamped segments. The
// audio is addressed by a readable (presigned) URL; implementations
// fetch the bytes themselves.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioURL string, opts Options) (Result, error)
}

// TransportError means the audio bytes could not be retrieved from the
// object store. Treated as transient by the scheduler.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch audio: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError means the transcription backend rejected the request.
// Treated as transient by the scheduler (5xx and rate limits dominate).
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Provider, e.Status, e.Body)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
