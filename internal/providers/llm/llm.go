// Package llm defines the meeting-analysis contract and its
// implementations.
package llm

import (
	"context"
	"fmt"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// Options tune an analysis request.
type Options struct {
	Language     string
	MeetingTitle string
}

// Analyzer turns a flat transcript into a structured analysis result.
// Implementations backed by a remote model must recover from malformed
// responses locally (returning a safe default result) rather than
// surfacing a parse failure, so a deterministic parsing bug cannot put
// the pipeline into a retry loop.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, transcript string, opts Options) (model.AnalysisResult, error)
}

// UpstreamError means the analysis backend rejected the request.
// Treated as transient by the scheduler.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Provider, e.Status, e.Body)
}
