package intakeapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// envelope is the response shape for every intake endpoint. Failures carry the stable code
// from intake.Code next to the user-facing message.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Intake responses carry access-code verdicts and link details, so none are cacheable.
func respond(w http.ResponseWriter, status int, env envelope) {
	hdr := w.Header()
	hdr.Set("Content-Type", "application/json; charset=utf-8")
	hdr.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, data any) {
	respond(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	respond(w, status, envelope{Error: msg, Code: code})
}

var errTrailingData = errors.New("trailing data after request object")

// readRequest decodes exactly one JSON object into dst, capped at cfg.MaxBodyBytes. On failure
// the error response is already written: 413 for an oversized body, 400 invalid_json otherwise.
func (h *Handler) readRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeOne(http.MaxBytesReader(w, bodyOf(r), h.cfg.MaxBodyBytes), dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
	return false
}

func bodyOf(r *http.Request) io.ReadCloser {
	if r.Body == nil {
		return http.NoBody
	}
	return r.Body
}

func decodeOne(body io.ReadCloser, dst any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}
