// Package storage provides an in-memory Record Store used by the demo
// binary and the tests. It implements the same contract as the Postgres
// repository without any infrastructure.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
	"github.com/dyparkkk-lg/meeting-ai/internal/repository"
)

// MemoryStore keeps all records in maps guarded by one mutex, so every
// mutation is a single atomic read-modify-write.
type MemoryStore struct {
	mu          sync.RWMutex
	meetings    map[string]model.Meeting
	transcripts map[string][]model.Segment
	analyses    map[string]model.AnalysisResult
	documents   map[string]model.Document
}

var _ repository.Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings:    make(map[string]model.Meeting),
		transcripts: make(map[string][]model.Segment),
		analyses:    make(map[string]model.AnalysisResult),
		documents:   make(map[string]model.Document),
	}
}

// CreateMeeting inserts a meeting at the CREATED stage.
func (s *MemoryStore) CreateMeeting(ctx context.Context, m *model.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	m.Stage = model.StageCreated
	m.CreatedAt = now
	m.UpdatedAt = now
	s.meetings[m.ID] = *m
	return nil
}

// SetAudioObject records the object key the upload URL was issued for.
func (s *MemoryStore) SetAudioObject(ctx context.Context, meetingID, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return repository.ErrNotFound
	}
	m.AudioObjectKey = objectKey
	m.UpdatedAt = time.Now().UTC()
	s.meetings[meetingID] = m
	return nil
}

// GetMeeting returns a copy of the meeting.
func (s *MemoryStore) GetMeeting(ctx context.Context, meetingID string) (*model.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := m
	return &out, nil
}

// ListMeetings returns a page of meetings, newest first.
func (s *MemoryStore) ListMeetings(ctx context.Context, page, limit int) ([]model.Meeting, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	all := make([]model.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]model.Meeting, end-start)
	copy(out, all[start:end])
	return out, total, nil
}

// UpdateMeetingStage persists a stage transition.
func (s *MemoryStore) UpdateMeetingStage(ctx context.Context, meetingID string, stage model.Stage, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return repository.ErrNotFound
	}
	m.Stage = stage
	m.ErrorMessage = errorMessage
	m.UpdatedAt = time.Now().UTC()
	s.meetings[meetingID] = m
	return nil
}

// GetTranscript returns a copy of the stored segments.
func (s *MemoryStore) GetTranscript(ctx context.Context, meetingID string) ([]model.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segments, ok := s.transcripts[meetingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := make([]model.Segment, len(segments))
	copy(out, segments)
	return out, nil
}

// UpsertTranscript replaces the transcript wholesale.
func (s *MemoryStore) UpsertTranscript(ctx context.Context, meetingID string, segments []model.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]model.Segment, len(segments))
	copy(stored, segments)
	s.transcripts[meetingID] = stored
	return nil
}

// GetAnalysis returns a copy of the stored analysis result.
func (s *MemoryStore) GetAnalysis(ctx context.Context, meetingID string) (*model.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.analyses[meetingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyAnalysis(result)
	return &out, nil
}

// UpsertAnalysis replaces the analysis result wholesale.
func (s *MemoryStore) UpsertAnalysis(ctx context.Context, meetingID string, result model.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[meetingID] = copyAnalysis(result)
	return nil
}

// ReplaceActionItems swaps only the actionItems field under the lock.
func (s *MemoryStore) ReplaceActionItems(ctx context.Context, meetingID string, items []model.ActionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.analyses[meetingID]
	if !ok {
		return repository.ErrNotFound
	}
	stored := make([]model.ActionItem, len(items))
	copy(stored, items)
	result.ActionItems = stored
	s.analyses[meetingID] = result
	return nil
}

// GetDocument returns the rendered document.
func (s *MemoryStore) GetDocument(ctx context.Context, meetingID string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[meetingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := doc
	return &out, nil
}

// UpsertDocument replaces the rendered document wholesale.
func (s *MemoryStore) UpsertDocument(ctx context.Context, meetingID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[meetingID] = model.Document{
		MeetingID:   meetingID,
		Content:     content,
		GeneratedAt: time.Now().UTC(),
	}
	return nil
}

func copyAnalysis(in model.AnalysisResult) model.AnalysisResult {
	out := model.AnalysisResult{
		OverallSummary: append([]string(nil), in.OverallSummary...),
		Decisions:      append([]model.Decision(nil), in.Decisions...),
		ActionItems:    append([]model.ActionItem(nil), in.ActionItems...),
		Risks:          append([]model.Risk(nil), in.Risks...),
		OpenQuestions:  append([]model.OpenQuestion(nil), in.OpenQuestions...),
	}
	return out
}
