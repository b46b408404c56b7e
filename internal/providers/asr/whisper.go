package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

const defaultWhisperEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// Whisper transcribes via the OpenAI audio.transcriptions endpoint,
// requesting verbose_json so segment timings come back.
type Whisper struct {
	apiKey   string
	endpoint string
	httpc    *http.Client
	log      *logrus.Logger
}

var _ Transcriber = (*Whisper)(nil)

// NewWhisper constructs the OpenAI-backed transcriber. The HTTP client
// carries a bounded timeout so a hung upstream call cannot occupy a
// worker slot forever.
func NewWhisper(apiKey string, log *logrus.Logger) *Whisper {
	return &Whisper{
		apiKey:   apiKey,
		endpoint: defaultWhisperEndpoint,
		httpc:    &http.Client{Timeout: 10 * time.Minute},
		log:      log,
	}
}

// Name identifies the provider in logs and stored metadata.
func (w *Whisper) Name() string { return "openai-whisper" }

// Transcribe downloads the audio from the presigned URL and forwards it
// to the Whisper API.
func (w *Whisper) Transcribe(ctx context.Context, audioURL string, opts Options) (Result, error) {
	audio, err := w.downloadAudio(ctx, audioURL)
	if err != nil {
		return Result{}, err
	}
	w.log.WithField("bytes", len(audio)).Debug("audio downloaded")
	return w.callWhisper(ctx, audio, opts)
}

func (w *Whisper) downloadAudio(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	resp, err := w.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return data, nil
}

func (w *Whisper) callWhisper(ctx context.Context, audio []byte, opts Options) (Result, error) {
	mediaType := opts.MediaType
	if mediaType == "" {
		mediaType = "audio/webm"
	}
	filename := "audio." + model.ExtensionForMediaType(mediaType)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", "whisper-1"); err != nil {
		return Result{}, fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return Result{}, fmt.Errorf("write format field: %w", err)
	}
	if err := mw.WriteField("timestamp_granularities[]", "segment"); err != nil {
		return Result{}, fmt.Errorf("write granularity field: %w", err)
	}
	if opts.LanguageHint != "" {
		if err := mw.WriteField("language", opts.LanguageHint); err != nil {
			return Result{}, fmt.Errorf("write language field: %w", err)
		}
	}
	fw, err := createFilePart(mw, filename, mediaType)
	if err != nil {
		return Result{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return Result{}, fmt.Errorf("write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &body)
	if err != nil {
		return Result{}, fmt.Errorf("build whisper request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpc.Do(req)
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Result{}, &UpstreamError{Provider: w.Name(), Status: resp.StatusCode, Body: string(b)}
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return Result{}, fmt.Errorf("decode whisper response: %w", err)
	}
	return wr.toResult(), nil
}

func createFilePart(mw *multipart.Writer, filename, mediaType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", mediaType)
	return mw.CreatePart(h)
}

type whisperResponse struct {
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (wr whisperResponse) toResult() Result {
	segments := make([]model.Segment, 0, len(wr.Segments))
	for _, seg := range wr.Segments {
		segments = append(segments, model.Segment{
			StartMs: secToMs(seg.Start),
			EndMs:   secToMs(seg.End),
			Text:    strings.TrimSpace(seg.Text),
			// Whisper has no speaker diarization; the label stays empty.
		})
	}
	if len(segments) == 0 && wr.Text != "" {
		segments = append(segments, model.Segment{
			StartMs: 0,
			EndMs:   secToMs(wr.Duration),
			Text:    strings.TrimSpace(wr.Text),
		})
	}
	return Result{
		Segments:   segments,
		Language:   wr.Language,
		DurationMs: secToMs(wr.Duration),
	}
}

func secToMs(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}
