package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/redact"
	"github.com/straja-ai/threatkit/internal/summarizer"
)

type errorBody struct {
	Error string `json:"error"`
}

type emailCheckRequest struct {
	analyzer.EmailInput
	StoreBody bool `json:"store_body"`
}

type emailCheckResponse struct {
	*analyzer.EmailResult
	AISummary *string `json:"ai_summary,omitempty"`
}

type urlCheckRequest struct {
	URL string `json:"url"`
}

type urlCheckResponse struct {
	*analyzer.URLResult
	AISummary *string `json:"ai_summary,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	for _, c := range s.deps.Ready {
		if err := c.Check(); err != nil {
			writeError(w, http.StatusServiceUnavailable, c.Name+": "+err.Error())
			return
		}
	}
	fmt.Fprintln(w, "ready")
}

func (s *Server) handleEmailCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req emailCheckRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := s.deps.Email.Analyze(ctx, req.EmailInput)
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordEmail(ctx, req.EmailInput, res, req.StoreBody)
	}

	resp := emailCheckResponse{EmailResult: res}
	if s.deps.Summarizer != nil {
		text := summarizer.Explain(ctx, s.deps.Summarizer, summarizer.KindEmail, res)
		resp.AISummary = &text
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleURLCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req urlCheckRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := s.deps.URL.Analyze(ctx, req.URL)
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordURL(ctx, res)
	}

	resp := urlCheckResponse{URLResult: res}
	if s.deps.Summarizer != nil {
		text := summarizer.Explain(ctx, s.deps.Summarizer, summarizer.KindURL, res)
		resp.AISummary = &text
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
}

// decode reads a size-limited JSON body into dst, writing the error response
// itself when it fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := io.Reader(r.Body)
	if s.cfg.MaxRequestBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBodyBytes)
	}
	err := json.NewDecoder(body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

func (s *Server) writeAnalyzeError(w http.ResponseWriter, err error) {
	if errors.Is(err, analyzer.ErrInvalidInput) {
		msg := strings.TrimPrefix(err.Error(), analyzer.ErrInvalidInput.Error()+": ")
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	s.logger.Error("analysis failed", "error", redact.String(err.Error()))
	writeError(w, http.StatusInternalServerError, "analysis failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
