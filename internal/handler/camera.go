package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"trafficcam/internal/dto"
	"trafficcam/internal/logger"
	"trafficcam/internal/model"
	"trafficcam/internal/repository"
	"trafficcam/internal/service/stream"
)

const defaultCameraPageSize = 100

// CreateCameraHandler registers a new camera.
func CreateCameraHandler(cameras repository.CameraRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CameraCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid JSON body")
			return
		}
		if msg := req.Validate(); msg != "" {
			writeError(w, http.StatusBadRequest, CodeBadRequest, msg)
			return
		}

		cam := &model.Camera{
			Name:      strings.TrimSpace(req.Name),
			SourceURL: strings.TrimSpace(req.SourceURL),
			Location:  strings.TrimSpace(req.Location),
			IsActive:  true,
		}
		if _, err := cameras.Insert(cam); err != nil {
			if errors.Is(err, repository.ErrDuplicateSource) {
				writeError(w, http.StatusConflict, CodeConflict, "Camera with this source already exists")
				return
			}
			logger.Error("Failed to create camera %q: %v", cam.Name, err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to create camera")
			return
		}

		logger.Info("Camera %d registered: %s (%s)", cam.ID, cam.Name, cam.SourceURL)
		writeJSON(w, http.StatusOK, cam)
	}
}

// ListCamerasHandler returns cameras paged by skip and limit.
func ListCamerasHandler(cameras repository.CameraRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip := atoiDefault(r.URL.Query().Get("skip"), 0)
		limit := atoiDefault(r.URL.Query().Get("limit"), defaultCameraPageSize)

		list, err := cameras.GetAll(skip, limit)
		if err != nil {
			logger.Error("Failed to list cameras: %v", err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to list cameras")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GetCameraHandler returns a single camera.
func GetCameraHandler(cameras repository.CameraRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseCameraID(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
			return
		}

		cam, err := cameras.GetByID(id)
		if err != nil {
			logger.Error("Failed to load camera %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to load camera")
			return
		}
		if cam == nil {
			writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
			return
		}
		writeJSON(w, http.StatusOK, cam)
	}
}

// DeleteCameraHandler stops the camera's pipeline, then removes its record.
func DeleteCameraHandler(cameras repository.CameraRepository, registry *stream.Registry, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseCameraID(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
			return
		}

		cam, err := cameras.GetByID(id)
		if err != nil {
			logger.Error("Failed to load camera %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to load camera")
			return
		}
		if cam == nil {
			writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
			return
		}

		err = registry.Remove(strconv.FormatInt(id, 10), func() error {
			return cameras.Delete(id)
		})
		if err != nil {
			if errors.Is(err, repository.ErrCameraNotFound) {
				writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
				return
			}
			logger.Error("Failed to delete camera %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to delete camera")
			return
		}

		logger.Info("Camera %d deleted", id)
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": "Camera deleted",
		})
	}
}
