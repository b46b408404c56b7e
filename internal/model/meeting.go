// Package model contains the value types shared across the API, the
// pipeline and the storage layers.
package model

import (
	"time"
)

// Stage describes a meeting's position in the processing lifecycle.
type Stage string

const (
	StageCreated         Stage = "CREATED"
	StageUploaded        Stage = "UPLOADED"
	StageTranscriptReady Stage = "TRANSCRIPT_READY"
	StageAnalysisReady   Stage = "ANALYSIS_READY"
	StageDocumentReady   Stage = "DOCUMENT_READY"
	StageComplete        Stage = "COMPLETE"
	// StageFailed is an absorbing side-state, reachable from any
	// non-terminal stage. It is deliberately excluded from the progress
	// order below; ordering comparisons against it are not meaningful.
	StageFailed Stage = "FAILED"
)

// progressOrder is the happy-path lifecycle. StageFailed is not on it.
var progressOrder = []Stage{
	StageCreated,
	StageUploaded,
	StageTranscriptReady,
	StageAnalysisReady,
	StageDocumentReady,
	StageComplete,
}

func (s Stage) ordinal() (int, bool) {
	for i, stage := range progressOrder {
		if stage == s {
			return i, true
		}
	}
	return -1, false
}

// Valid reports whether s is a known stage, including StageFailed.
func (s Stage) Valid() bool {
	if s == StageFailed {
		return true
	}
	_, ok := s.ordinal()
	return ok
}

// AtLeast reports whether s sits at or past target on the happy path.
// If either side is StageFailed (or unknown) there is no defined order
// and AtLeast returns false; callers must check for StageFailed
// explicitly before comparing.
func (s Stage) AtLeast(target Stage) bool {
	cur, ok := s.ordinal()
	if !ok {
		return false
	}
	want, ok := target.ordinal()
	if !ok {
		return false
	}
	return cur >= want
}

// Next returns the successor stage on the happy path. The second return
// is false for StageComplete and StageFailed.
func (s Stage) Next() (Stage, bool) {
	i, ok := s.ordinal()
	if !ok || i+1 >= len(progressOrder) {
		return "", false
	}
	return progressOrder[i+1], true
}

// Meeting is the aggregate root owned by the pipeline. Stage only ever
// advances forward or into StageFailed; it never regresses.
type Meeting struct {
	ID             string    `json:"id"`
	Title          string    `json:"title,omitempty"`
	LanguageHint   string    `json:"languageHint,omitempty"`
	Stage          Stage     `json:"stage"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	AudioObjectKey string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Segment is one diarized slice of the transcript. Offsets are
// milliseconds from the start of the recording, StartMs <= EndMs.
type Segment struct {
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

// Evidence anchors a claim in the analysis to a transcript time range.
type Evidence struct {
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Quote   string `json:"quote"`
}

// Decision is a decision reached during the meeting.
type Decision struct {
	Decision string     `json:"decision"`
	Evidence []Evidence `json:"evidence"`
}

// Action item priorities.
const (
	PriorityP0 = "P0"
	PriorityP1 = "P1"
	PriorityP2 = "P2"
	PriorityP3 = "P3"
)

// ActionItem is a follow-up task extracted from the meeting. Assignee
// and DueDate are nil when the transcript left them unresolved.
type ActionItem struct {
	Task     string     `json:"task"`
	Assignee *string    `json:"assigneeCandidate"`
	DueDate  *string    `json:"dueDate"`
	Priority string     `json:"priority"`
	Evidence []Evidence `json:"evidence"`
}

// Risk severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Risk is an issue or concern surfaced during the meeting.
type Risk struct {
	Description string     `json:"description"`
	Severity    string     `json:"severity"`
	Evidence    []Evidence `json:"evidence"`
}

// OpenQuestion is a question the meeting left unresolved.
type OpenQuestion struct {
	Question string     `json:"question"`
	Evidence []Evidence `json:"evidence"`
}

// AnalysisResult is the full structured output of the meeting analyzer,
// stored one-to-one with the meeting and replaced wholesale on
// reprocessing.
type AnalysisResult struct {
	OverallSummary []string       `json:"overallSummary"`
	Decisions      []Decision     `json:"decisions"`
	ActionItems    []ActionItem   `json:"actionItems"`
	Risks          []Risk         `json:"risks"`
	OpenQuestions  []OpenQuestion `json:"openQuestions"`
}

// Document is the rendered meeting record.
type Document struct {
	MeetingID   string    `json:"meetingId"`
	Content     string    `json:"content"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// ValidPriority reports whether p is one of the known priority ranks.
func ValidPriority(p string) bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	}
	return false
}

// ValidSeverity reports whether s is one of the known severity ranks.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}
