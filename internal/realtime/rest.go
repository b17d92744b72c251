package realtime

import (
	"encoding/json"
	"net/http"
	"strconv"

	"plantify-cam/internal/camera"
	"plantify-cam/internal/imaging"
)

type toggleRequest struct {
	Status bool `json:"status"`
}

type toggleResponse struct {
	Changed bool `json:"changed"`
	Active  bool `json:"active"`
}

type statusResponse struct {
	Status      string `json:"status"`
	Active      bool   `json:"active"`
	Detector    bool   `json:"detector"`
	Subscribers int    `json:"subscribers"`
}

type probeResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	TestImage   string `json:"testImage"`
	Active      bool   `json:"active"`
	Subscribers int    `json:"subscribers"`
}

type restartResponse struct {
	Status string `json:"status"`
	Active bool   `json:"active"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Status: "error", Message: message})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl := s.controller()
	if ctrl == nil {
		writeError(w, http.StatusServiceUnavailable, "camera session not ready")
		return
	}

	changed, active := ctrl.SetActive(req.Status)
	writeJSON(w, http.StatusOK, toggleResponse{Changed: changed, Active: active})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:      "running",
		Subscribers: s.Size(),
	}
	if ctrl := s.controller(); ctrl != nil {
		resp.Active = ctrl.Active()
		resp.Detector = ctrl.DetectorReady()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCheckConnection serves a synthetic image through the same encode
// path as live frames, so the broadcast encoding can be validated without
// a camera.
func (s *Server) handleCheckConnection(w http.ResponseWriter, r *http.Request) {
	encoded, err := imaging.EncodeBase64(imaging.ProbeImage(), imaging.DefaultJPEGQuality)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "test image generation failed: "+err.Error())
		return
	}

	active := false
	if ctrl := s.controller(); ctrl != nil {
		active = ctrl.Active()
	}

	writeJSON(w, http.StatusOK, probeResponse{
		Status:      "success",
		Message:     "Connection established successfully",
		TestImage:   encoded,
		Active:      active,
		Subscribers: s.Size(),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller()
	if ctrl == nil {
		writeError(w, http.StatusServiceUnavailable, "camera session not ready")
		return
	}

	active := ctrl.Restart(camera.DefaultRestartGrace)
	writeJSON(w, http.StatusOK, restartResponse{Status: "success", Active: active})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alert store not configured")
		return
	}

	alerts, err := s.alerts.RecentAlerts(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}
