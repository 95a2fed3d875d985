package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// Error codes returned in JSON error bodies.
const (
	CodeCameraNotFound    = "CameraNotFound"
	CodeSourceUnavailable = "SourceUnavailable"
	CodeBadRequest        = "BadRequest"
	CodeConflict          = "Conflict"
	CodeInternal          = "InternalError"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// cameraKey normalizes a path camera id so "007" and "7" address the same camera.
// Non-numeric ids are returned trimmed and never match a registered camera.
func cameraKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(id, 10)
	}
	return raw
}

// parseCameraID parses a positive numeric camera id.
func parseCameraID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// atoiDefault returns def for empty, invalid or negative input.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
