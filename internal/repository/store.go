// Package repository defines the Record Store contract and its Postgres
// implementation. All artifact writes are idempotent upserts keyed by
// meeting identity: create-if-absent, overwrite-if-present.
package repository

import (
	"context"
	"errors"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// ErrNotFound is returned when a meeting or one of its artifacts does
// not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract shared by the API and the pipeline.
// Implementations must make every mutation a single atomic
// read-modify-write so a concurrent stage completion and a user edit
// cannot interleave into a lost update.
type Store interface {
	CreateMeeting(ctx context.Context, m *model.Meeting) error
	SetAudioObject(ctx context.Context, meetingID, objectKey string) error
	GetMeeting(ctx context.Context, meetingID string) (*model.Meeting, error)
	ListMeetings(ctx context.Context, page, limit int) ([]model.Meeting, int, error)
	UpdateMeetingStage(ctx context.Context, meetingID string, stage model.Stage, errorMessage string) error

	GetTranscript(ctx context.Context, meetingID string) ([]model.Segment, error)
	UpsertTranscript(ctx context.Context, meetingID string, segments []model.Segment) error

	GetAnalysis(ctx context.Context, meetingID string) (*model.AnalysisResult, error)
	UpsertAnalysis(ctx context.Context, meetingID string, result model.AnalysisResult) error
	// ReplaceActionItems swaps only the actionItems field of the stored
	// analysis result, leaving every other field and the meeting's stage
	// untouched.
	ReplaceActionItems(ctx context.Context, meetingID string, items []model.ActionItem) error

	GetDocument(ctx context.Context, meetingID string) (*model.Document, error)
	UpsertDocument(ctx context.Context, meetingID, content string) error
}
