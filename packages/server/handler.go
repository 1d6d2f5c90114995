package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/beaconspec/packages/assertions"
	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

const (
	msgInvalidMethod  = "Invalid request method"
	msgInvalidTest    = "Invalid test sequence"
	msgInvalidOptions = "Invalid options"
)

// ResultJSON is the wire shape of one assertion result.
type ResultJSON struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Result  assertions.Outcome `json:"result"`
	Message string             `json:"message,omitempty"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := s.logger.With(zap.String("method", r.Method), zap.String("path", r.URL.Path))

	if r.Method != http.MethodPost {
		logger.Warn("Rejected request", zap.String("reason", msgInvalidMethod))
		writeError(w, msgInvalidMethod)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		logger.Warn("Rejected request", zap.Error(err))
		writeError(w, err.Error())
		return
	}
	if msg := checkEnvelope(body); msg != "" {
		logger.Warn("Rejected request", zap.String("reason", msg))
		writeError(w, msg)
		return
	}

	file, err := parser.ParseJSON(body, "")
	if err != nil {
		logger.Warn("Rejected request", zap.Error(err))
		writeError(w, err.Error())
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(r.Context()); err != nil {
			logger.Warn("Run not admitted", zap.Error(err))
			writeError(w, err.Error())
			return
		}
	}

	result, err := s.runner.Run(r.Context(), file.Test, file.Options)
	if err != nil {
		logger.Error("Run failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		writeError(w, err.Error())
		return
	}

	out := make([]ResultJSON, 0, len(result.Results))
	for _, res := range result.Results {
		out = append(out, ResultJSON{
			ID:      res.ID,
			Name:    res.Name,
			Result:  res.Outcome,
			Message: res.Message,
		})
	}
	logger.Info("Run served",
		zap.String("run", result.ID),
		zap.Int("results", len(out)),
		zap.Duration("duration", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, out)
}

// checkEnvelope rejects bodies whose test or options member is not an object.
func checkEnvelope(body []byte) string {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return msgInvalidTest
	}
	if !isObject(envelope["test"]) {
		return msgInvalidTest
	}
	if opts, ok := envelope["options"]; ok && !isObject(opts) && !isNull(opts) {
		return msgInvalidOptions
	}
	return ""
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func writeError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorJSON{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusBadRequest
		data, _ = json.Marshal(errorJSON{Error: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
