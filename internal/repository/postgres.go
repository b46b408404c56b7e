package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// MeetingRepository wraps all SQL used throughout the API and worker.
type MeetingRepository struct {
	pool *pgxpool.Pool
}

var _ Store = (*MeetingRepository)(nil)

// NewMeetingRepository constructs a repository over a pgx pool.
func NewMeetingRepository(pool *pgxpool.Pool) *MeetingRepository {
	return &MeetingRepository{pool: pool}
}

// CreateMeeting inserts a meeting at the CREATED stage.
func (r *MeetingRepository) CreateMeeting(ctx context.Context, m *model.Meeting) error {
	now := time.Now().UTC()
	m.Stage = model.StageCreated
	m.CreatedAt = now
	m.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO meetings (id, title, language_hint, stage, error_message, audio_object_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'','',$5,$6)
	`, m.ID, m.Title, m.LanguageHint, m.Stage, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

// SetAudioObject records the object key the upload URL was issued for.
func (r *MeetingRepository) SetAudioObject(ctx context.Context, meetingID, objectKey string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE meetings SET audio_object_key=$2, updated_at=$3 WHERE id=$1
	`, meetingID, objectKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set audio object: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMeeting returns a meeting by id.
func (r *MeetingRepository) GetMeeting(ctx context.Context, meetingID string) (*model.Meeting, error) {
	var (
		m        model.Meeting
		title    sql.NullString
		language sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, language_hint, stage, COALESCE(error_message,''), COALESCE(audio_object_key,''), created_at, updated_at
		FROM meetings WHERE id=$1
	`, meetingID)
	if err := row.Scan(&m.ID, &title, &language, &m.Stage, &m.ErrorMessage, &m.AudioObjectKey, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select meeting: %w", err)
	}
	m.Title = title.String
	m.LanguageHint = language.String
	return &m, nil
}

// ListMeetings returns a page of meetings, newest first, plus the total
// row count.
func (r *MeetingRepository) ListMeetings(ctx context.Context, page, limit int) ([]model.Meeting, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, language_hint, stage, COALESCE(error_message,''), created_at, updated_at
		FROM meetings ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("select meetings: %w", err)
	}
	defer rows.Close()
	var meetings []model.Meeting
	for rows.Next() {
		var (
			m        model.Meeting
			title    sql.NullString
			language sql.NullString
		)
		if err := rows.Scan(&m.ID, &title, &language, &m.Stage, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan meeting: %w", err)
		}
		m.Title = title.String
		m.LanguageHint = language.String
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate meetings: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM meetings`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count meetings: %w", err)
	}
	return meetings, total, nil
}

// UpdateMeetingStage persists a stage transition in one statement.
func (r *MeetingRepository) UpdateMeetingStage(ctx context.Context, meetingID string, stage model.Stage, errorMessage string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE meetings SET stage=$2, error_message=$3, updated_at=$4 WHERE id=$1
	`, meetingID, stage, errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update meeting stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTranscript returns the stored segments, or ErrNotFound if the
// transcribe stage has not produced one yet.
func (r *MeetingRepository) GetTranscript(ctx context.Context, meetingID string) ([]model.Segment, error) {
	var raw []byte
	row := r.pool.QueryRow(ctx, `SELECT segments FROM transcripts WHERE meeting_id=$1`, meetingID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select transcript: %w", err)
	}
	var segments []model.Segment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return nil, fmt.Errorf("decode transcript segments: %w", err)
	}
	return segments, nil
}

// UpsertTranscript replaces the transcript wholesale.
func (r *MeetingRepository) UpsertTranscript(ctx context.Context, meetingID string, segments []model.Segment) error {
	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode transcript segments: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO transcripts (meeting_id, segments, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (meeting_id) DO UPDATE SET segments=EXCLUDED.segments, updated_at=EXCLUDED.updated_at
	`, meetingID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

// GetAnalysis returns the stored analysis result, or ErrNotFound.
func (r *MeetingRepository) GetAnalysis(ctx context.Context, meetingID string) (*model.AnalysisResult, error) {
	var raw []byte
	row := r.pool.QueryRow(ctx, `SELECT result FROM analyses WHERE meeting_id=$1`, meetingID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select analysis: %w", err)
	}
	var result model.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return &result, nil
}

// UpsertAnalysis replaces the analysis result wholesale.
func (r *MeetingRepository) UpsertAnalysis(ctx context.Context, meetingID string, result model.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode analysis result: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO analyses (meeting_id, result, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (meeting_id) DO UPDATE SET result=EXCLUDED.result, updated_at=EXCLUDED.updated_at
	`, meetingID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

// ReplaceActionItems swaps the actionItems field inside the stored JSONB
// result in a single UPDATE, so it cannot race a concurrent wholesale
// upsert into a lost update.
func (r *MeetingRepository) ReplaceActionItems(ctx context.Context, meetingID string, items []model.ActionItem) error {
	if items == nil {
		items = []model.ActionItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode action items: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE analyses
		SET result = jsonb_set(result, '{actionItems}', $2::jsonb),
			updated_at = $3
		WHERE meeting_id=$1
	`, meetingID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replace action items: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDocument returns the rendered document, or ErrNotFound.
func (r *MeetingRepository) GetDocument(ctx context.Context, meetingID string) (*model.Document, error) {
	doc := model.Document{MeetingID: meetingID}
	row := r.pool.QueryRow(ctx, `SELECT content, generated_at FROM documents WHERE meeting_id=$1`, meetingID)
	if err := row.Scan(&doc.Content, &doc.GeneratedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return &doc, nil
}

// UpsertDocument replaces the rendered document wholesale.
func (r *MeetingRepository) UpsertDocument(ctx context.Context, meetingID, content string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (meeting_id, content, generated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (meeting_id) DO UPDATE SET content=EXCLUDED.content, generated_at=EXCLUDED.generated_at
	`, meetingID, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}
