package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"latexlens/internal/models"
	"latexlens/internal/prompts"
	"latexlens/internal/providers"
	"latexlens/internal/recognition"
	"latexlens/internal/storage"
	"latexlens/internal/workflows"
)

const maxUploadBytes = 20 << 20

var (
	errMethodNotAllowed = errors.New("method not allowed")
	errNotFound         = errors.New("not found")
)

// WorkflowClient is the part of the Temporal client the server uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// StageCallLister reads the per-stage audit log.
type StageCallLister interface {
	ListByRecognition(ctx context.Context, recognitionID string) ([]storage.StageCallRecord, error)
}

type Deps struct {
	Orchestrator *recognition.Orchestrator
	History      *storage.HistoryCache
	Images       *storage.ImageStore
	Calls        StageCallLister
	Temporal     WorkflowClient
	TaskQueue    string
	Logger       zerolog.Logger
}

type Server struct {
	orch      *recognition.Orchestrator
	history   *storage.HistoryCache
	images    *storage.ImageStore
	calls     StageCallLister
	temporal  WorkflowClient
	taskQueue string
	hub       *eventHub
	sink      recognition.ProgressSink
	log       zerolog.Logger

	relayEvery   time.Duration
	relayTimeout time.Duration
}

func NewServer(d Deps) *Server {
	taskQueue := d.TaskQueue
	if taskQueue == "" {
		taskQueue = workflows.TaskQueueDefault
	}
	log := d.Logger.With().Str("component", "api").Logger()
	hub := newEventHub()
	return &Server{
		orch:      d.Orchestrator,
		history:   d.History,
		images:    d.Images,
		calls:     d.Calls,
		temporal:  d.Temporal,
		taskQueue: taskQueue,
		hub:       hub,
		sink:      recognition.MultiSink{hub, recognition.LogSink{Logger: log}},
		log:       log,

		relayEvery:   500 * time.Millisecond,
		relayTimeout: 15 * time.Minute,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/recognitions", s.handleRecognize)
	mux.HandleFunc("/recognitions/async", s.handleRecognizeAsync)
	mux.HandleFunc("/recognitions/async/", s.handleRecognitionProgress)
	mux.HandleFunc("/recognitions/events", s.handleEvents)
	mux.HandleFunc("/recognitions/", s.handleRecognitionScoped)
	mux.HandleFunc("/recognitions/retry-analysis", s.handleRetryAnalysis)
	mux.HandleFunc("/recognitions/retry-verification", s.handleRetryVerification)
	mux.HandleFunc("/confidence", s.handleConfidence)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/history/", s.handleHistoryScoped)
	mux.HandleFunc("/prompts", s.handlePrompts)
	mux.HandleFunc("/connection", s.handleConnection)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type imageRequest struct {
	Image string `json:"image"`
	Latex string `json:"latex,omitempty"`
}

// imageSource accepts either a JSON body with base64 data or a multipart
// upload in any supported image format.
func imageSource(r *http.Request) (recognition.ImageSource, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("invalid upload: %w", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, recognition.ErrNoImage
		}
		defer f.Close()
		b, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return recognition.BytesSource(b), nil
	}
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return recognition.Base64Source(req.Image), nil
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	src, err := imageSource(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	img, err := src.Image(r.Context())
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.orch.Recognize(r.Context(), recognition.Base64Source(img.Base64), s.sink)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecognizeAsync(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("temporal is not configured"))
		return
	}
	src, err := imageSource(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	img, err := src.Image(r.Context())
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	built, prov, err := s.orch.PromptSet()
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "recognition-" + id,
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, workflows.RecognitionWorkflow, workflows.RecognitionInput{
		RecognitionID: id,
		ImageBase64:   img.Base64,
		Prompts:       built,
		Provenance:    prov,
		Language:      s.orch.Language(),
		ModelName:     s.orch.ModelName(),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	go s.relayWorkflowEvents(id)
	writeJSON(w, http.StatusAccepted, map[string]any{"recognition_id": id, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

// relayWorkflowEvents polls the workflow's progress query and forwards new
// events to the SSE hub until the workflow leaves the processing state.
func (s *Server) relayWorkflowEvents(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.relayTimeout)
	defer cancel()
	ticker := time.NewTicker(s.relayEvery)
	defer ticker.Stop()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			s.log.Warn().Str("id", id).Msg("stopped relaying workflow progress")
			return
		case <-ticker.C:
		}
		resp, err := s.temporal.QueryWorkflow(ctx, "recognition-"+id, "", workflows.QueryGetProgress)
		if err != nil {
			s.log.Debug().Err(err).Str("id", id).Msg("progress query failed")
			continue
		}
		var prog workflows.RecognitionProgress
		if err := resp.Get(&prog); err != nil {
			s.log.Debug().Err(err).Str("id", id).Msg("decode progress failed")
			continue
		}
		for ; seen < len(prog.Events); seen++ {
			s.hub.Emit(ctx, prog.Events[seen])
		}
		if prog.Status != "processing" {
			return
		}
	}
}

// handleRecognitionScoped serves /recognitions/{id}/calls.
func (s *Server) handleRecognitionScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/recognitions/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "calls" {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}
	if s.calls == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("stage call audit log is not configured"))
		return
	}
	calls, err := s.calls.ListByRecognition(r.Context(), parts[0])
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recognition_id": parts[0], "calls": calls})
}

func (s *Server) handleRecognitionProgress(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/recognitions/async/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("temporal is not configured"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), "recognition-"+id, "", workflows.QueryGetProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	var prog workflows.RecognitionProgress
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

// handleEvents streams progress of synchronous recognitions and of async ones
// started through this process. Filter with ?id=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}
	only := r.URL.Query().Get("id")
	ch, unsubscribe := s.hub.subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if only != "" && ev.ID != only {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				s.log.Debug().Err(err).Msg("sse write failed")
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleRetryAnalysis(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req imageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.orch.RetryAnalysis(r.Context(), req.Image)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRetryVerification(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req imageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Latex) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("latex is required"))
		return
	}
	out, err := s.orch.RetryVerification(r.Context(), req.Latex, req.Image)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfidence(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req imageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Latex) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("latex is required"))
		return
	}
	score, err := s.orch.ConfidenceOnly(r.Context(), req.Latex)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"confidence_score": score})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	records, err := s.history.Get(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

func (s *Server) handleHistoryScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/history/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	id := parts[0]

	if len(parts) == 2 && parts[1] == "image" {
		if !allow(w, r, http.MethodGet) {
			return
		}
		s.handleHistoryImage(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Title      *string `json:"title"`
			IsFavorite *bool   `json:"is_favorite"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Title == nil && req.IsFavorite == nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("title or is_favorite is required"))
			return
		}
		if req.Title != nil {
			if err := s.history.UpdateTitle(r.Context(), id, *req.Title); err != nil {
				writeErr(w, statusFor(err), err)
				return
			}
		}
		if req.IsFavorite != nil {
			if err := s.history.SetFavorite(r.Context(), id, *req.IsFavorite); err != nil {
				writeErr(w, statusFor(err), err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "updated": true})
	case http.MethodDelete:
		if err := s.history.Delete(r.Context(), id); err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
	default:
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	}
}

func (s *Server) handleHistoryImage(w http.ResponseWriter, r *http.Request, id string) {
	records, err := s.history.Get(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	for _, rec := range records {
		if rec.ID != id {
			continue
		}
		if strings.HasPrefix(rec.OriginalImage, "data:") || s.images == nil {
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "image": rec.OriginalImage})
			return
		}
		url, err := s.images.ReadDataURL(rec.OriginalImage)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "image": url})
		return
	}
	writeErr(w, http.StatusNotFound, storage.ErrHistoryItemNotFound)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	resp := map[string]any{
		"language": s.orch.Language(),
		"format":   s.orch.Format(),
		"defaults": prompts.Parts(s.orch.Language(), s.orch.Format()),
	}
	built, prov, err := s.orch.PromptSet()
	if err != nil {
		resp["error"] = err.Error()
	} else {
		resp["active"] = built
		resp["provenance"] = prov
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	info, err := s.orch.TestConnection(r.Context())
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "provider": info.Name, "model": info.Model})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var cfgErr *recognition.ConfigError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, recognition.ErrNoImage):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrHistoryItemNotFound):
		return http.StatusNotFound
	}
	switch providers.ClassifyError(err) {
	case providers.ErrorCancelled:
		return 499
	case providers.ErrorRate:
		return http.StatusTooManyRequests
	}
	if strings.Contains(err.Error(), "decode base64 image") {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

func writeSSE(w io.Writer, ev models.ProgressEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Stage, b)
	return err
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "LL-API-4000"

	switch {
	case status == http.StatusBadGateway:
		return apiError{Code: "LL-API-5020", Message: "Recognition backend failed: " + errText(err)}
	case status == http.StatusServiceUnavailable:
		return apiError{Code: "LL-API-5030", Message: "Service dependency is not configured: " + errText(err)}
	case status >= 500:
		return apiError{Code: "LL-API-5000", Message: "Internal server error. Please retry or check service logs."}
	case status == http.StatusBadRequest:
		code = "LL-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "LL-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "LL-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "LL-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusTooManyRequests:
		code = "LL-API-4029"
		msg = "Backend rate limit reached. Retry shortly."
	case status == 499:
		code = "LL-API-4099"
		msg = "Request was cancelled."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		var cfgErr *recognition.ConfigError
		low := strings.ToLower(err.Error())
		switch {
		case errors.As(err, &cfgErr):
			msg = cfgErr.Error()
		case errors.Is(err, recognition.ErrNoImage):
			msg = "No image was provided."
		case strings.Contains(low, "latex is required"):
			msg = "LaTeX text is required."
		case strings.Contains(low, "title or is_favorite"):
			msg = "Provide a title or a favorite flag."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(low, "decode"):
			msg = "Image data could not be decoded."
		}
	}

	return apiError{Code: code, Message: msg}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
