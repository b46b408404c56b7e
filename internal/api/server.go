// Package api exposes the HTTP surface: meeting creation with presigned
// uploads, upload confirmation that kicks off processing, read access to
// the artifacts, action-item edits and markdown export.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/config"
	"github.com/dyparkkk-lg/meeting-ai/internal/model"
	"github.com/dyparkkk-lg/meeting-ai/internal/repository"
	"github.com/dyparkkk-lg/meeting-ai/internal/s3storage"
)

// AudioStore is the object-storage surface the API needs.
type AudioStore interface {
	PresignUploadURL(ctx context.Context, meetingID, contentType string) (s3storage.UploadTarget, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// Scheduler accepts stage-advance requests.
type Scheduler interface {
	Enqueue(ctx context.Context, stage model.Stage, meetingID string) error
}

// Server exposes the HTTP endpoints.
type Server struct {
	cfg    *config.Config
	store  repository.Store
	audio  AudioStore
	sched  Scheduler
	log    *logrus.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, store repository.Store, audio AudioStore, sched Scheduler, log *logrus.Logger) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		audio: audio,
		sched: sched,
		log:   log,
	}
}

// Handler builds the routing table. Exposed separately so tests can
// drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/meetings", s.handleMeetings)
	mux.HandleFunc("/meetings/", s.handleMeetingRoute)
	return corsMiddleware(loggingMiddleware(s.log, mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.WithField("address", s.cfg.Address).Info("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(s.log, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateMeeting(w, r)
	case http.MethodGet:
		s.handleListMeetings(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMeetingRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/meetings/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleGetMeeting(w, r, id)
		return
	}
	switch parts[1] {
	case "upload-complete":
		s.handleUploadComplete(w, r, id)
	case "action-items":
		s.handleActionItems(w, r, id)
	case "export":
		s.handleExport(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

type createMeetingRequest struct {
	Title        string `json:"title"`
	LanguageHint string `json:"languageHint"`
	MediaType    string `json:"mediaType"`
}

type createMeetingResponse struct {
	Meeting   model.Meeting `json:"meeting"`
	UploadURL string        `json:"uploadUrl"`
	ObjectKey string        `json:"objectKey"`
}

// handleCreateMeeting registers a meeting and hands back a presigned
// PUT URL. No audio bytes pass through this server.
func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createMeetingRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = "audio/webm"
	}
	if !s.mediaTypeAllowed(mediaType) {
		http.Error(w, fmt.Sprintf("unsupported media type %q", mediaType), http.StatusBadRequest)
		return
	}

	meeting := &model.Meeting{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(req.Title),
		LanguageHint: strings.TrimSpace(req.LanguageHint),
	}
	if err := s.store.CreateMeeting(ctx, meeting); err != nil {
		s.log.WithField("error", err.Error()).Error("create meeting")
		http.Error(w, "failed to create meeting", http.StatusInternalServerError)
		return
	}

	target, err := s.audio.PresignUploadURL(ctx, meeting.ID, mediaType)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("presign upload")
		http.Error(w, "failed to prepare upload", http.StatusInternalServerError)
		return
	}
	if err := s.store.SetAudioObject(ctx, meeting.ID, target.ObjectKey); err != nil {
		s.log.WithField("error", err.Error()).Error("record object key")
		http.Error(w, "failed to prepare upload", http.StatusInternalServerError)
		return
	}

	respondJSON(s.log, w, http.StatusCreated, createMeetingResponse{
		Meeting:   *meeting,
		UploadURL: target.URL,
		ObjectKey: target.ObjectKey,
	})
}

type uploadCompleteRequest struct {
	ObjectKey string `json:"objectKey"`
}

// handleUploadComplete confirms the client finished its PUT and starts
// the pipeline. Repeated confirmations after the meeting moved past
// CREATED are rejected, so processing starts exactly once per meeting.
func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	var req uploadCompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	meeting, err := s.store.GetMeeting(ctx, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if meeting.Stage != model.StageCreated {
		http.Error(w, fmt.Sprintf("meeting is already %s", meeting.Stage), http.StatusConflict)
		return
	}
	if req.ObjectKey == "" || req.ObjectKey != meeting.AudioObjectKey {
		http.Error(w, "objectKey does not match the issued upload target", http.StatusBadRequest)
		return
	}
	exists, err := s.audio.ObjectExists(ctx, meeting.AudioObjectKey)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("stat uploaded object")
		http.Error(w, "failed to verify upload", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "uploaded object not found", http.StatusBadRequest)
		return
	}

	if err := s.store.UpdateMeetingStage(ctx, id, model.StageUploaded, ""); err != nil {
		s.respondStoreError(w, err)
		return
	}
	if err := s.sched.Enqueue(ctx, model.StageTranscriptReady, id); err != nil {
		s.log.WithField("error", err.Error()).Error("enqueue transcription")
		http.Error(w, "failed to queue processing", http.StatusInternalServerError)
		return
	}
	respondJSON(s.log, w, http.StatusAccepted, map[string]string{
		"id":    id,
		"stage": string(model.StageUploaded),
	})
}

type listMeetingsResponse struct {
	Meetings []model.Meeting `json:"meetings"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	meetings, total, err := s.store.ListMeetings(r.Context(), page, limit)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("list meetings")
		http.Error(w, "failed to list meetings", http.StatusInternalServerError)
		return
	}
	if meetings == nil {
		meetings = []model.Meeting{}
	}
	respondJSON(s.log, w, http.StatusOK, listMeetingsResponse{
		Meetings: meetings,
		Total:    total,
		Page:     page,
		Limit:    limit,
	})
}

type meetingDetailResponse struct {
	Meeting    model.Meeting         `json:"meeting"`
	Transcript []model.Segment       `json:"transcript,omitempty"`
	Analysis   *model.AnalysisResult `json:"analysis,omitempty"`
	Document   *model.Document       `json:"document,omitempty"`
}

// handleGetMeeting returns the meeting and whatever artifacts its stage
// already guarantees. Artifact reads are gated on the stage, not on
// row existence, so a half-written pipeline step never leaks.
func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	meeting, err := s.store.GetMeeting(ctx, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	resp := meetingDetailResponse{Meeting: *meeting}
	if meeting.Stage.AtLeast(model.StageTranscriptReady) {
		if segments, err := s.store.GetTranscript(ctx, id); err == nil {
			resp.Transcript = segments
		}
	}
	if meeting.Stage.AtLeast(model.StageAnalysisReady) {
		if analysis, err := s.store.GetAnalysis(ctx, id); err == nil {
			resp.Analysis = analysis
		}
	}
	if meeting.Stage.AtLeast(model.StageComplete) {
		if doc, err := s.store.GetDocument(ctx, id); err == nil {
			resp.Document = doc
		}
	}
	respondJSON(s.log, w, http.StatusOK, resp)
}

type actionItemsRequest struct {
	ActionItems []model.ActionItem `json:"actionItems"`
}

// handleActionItems replaces the action-item list on the stored
// analysis. Other analysis fields are untouched.
func (s *Server) handleActionItems(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	var req actionItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	items := req.ActionItems
	if items == nil {
		items = []model.ActionItem{}
	}
	for i := range items {
		items[i].Task = strings.TrimSpace(items[i].Task)
		if items[i].Task == "" {
			http.Error(w, fmt.Sprintf("action item %d has no task", i), http.StatusBadRequest)
			return
		}
		if items[i].Priority == "" {
			items[i].Priority = model.PriorityP2
		}
		if !model.ValidPriority(items[i].Priority) {
			http.Error(w, fmt.Sprintf("action item %d has invalid priority %q", i, items[i].Priority), http.StatusBadRequest)
			return
		}
		if items[i].Evidence == nil {
			items[i].Evidence = []model.Evidence{}
		}
	}

	meeting, err := s.store.GetMeeting(ctx, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if !meeting.Stage.AtLeast(model.StageAnalysisReady) {
		http.Error(w, "analysis not available yet", http.StatusConflict)
		return
	}
	if err := s.store.ReplaceActionItems(ctx, id, items); err != nil {
		s.respondStoreError(w, err)
		return
	}
	analysis, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(s.log, w, http.StatusOK, analysis)
}

// handleExport serves the rendered document as a markdown download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	meeting, err := s.store.GetMeeting(ctx, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if !meeting.Stage.AtLeast(model.StageComplete) {
		http.Error(w, "document not ready", http.StatusConflict)
		return
	}
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	filename := exportFilename(meeting.Title, meeting.CreatedAt)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc.Content)
}

func (s *Server) mediaTypeAllowed(mediaType string) bool {
	for _, allowed := range s.cfg.AllowedAudioTypes {
		if strings.EqualFold(allowed, mediaType) {
			return true
		}
	}
	return false
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "meeting not found", http.StatusNotFound)
		return
	}
	s.log.WithField("error", err.Error()).Error("store error")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// exportFilename builds "2026-08-28_weekly-sync.md" from the meeting's
// title and creation date.
func exportFilename(title string, createdAt time.Time) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := true
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "meeting"
	}
	return fmt.Sprintf("%s_%s.md", createdAt.UTC().Format("2006-01-02"), out)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 1 {
		return def
	}
	return parsed
}

func respondJSON(log *logrus.Logger, w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithField("error", err.Error()).Error("encode response")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(log *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}
