package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/thinglink-core/internal/pairing"
)

type selectModeRequest struct {
	Mode pairing.Mode `json:"mode"`
}

type uuidRequest struct {
	UUID string `json:"uuid"`
}

type activateRequest struct {
	UUID      string `json:"uuid"`
	SSID      string `json:"ssid"`
	Password  string `json:"password"`
	IsShared  bool   `json:"is_shared"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// handleGetPairing returns the coordinator snapshot.
func (s *Server) handleGetPairing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}

// handleSelectMode opens a scan window or moves to Wi-Fi setup.
func (s *Server) handleSelectMode(w http.ResponseWriter, r *http.Request) {
	var req selectModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Mode = pairing.Mode(strings.ToUpper(string(req.Mode)))

	if err := s.coordinator.SelectMode(r.Context(), req.Mode); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}

func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.StopScan(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}

// handleSelectDevice picks a scanned device. A device that needs another
// mode answers 409 with the suggested mode.
func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	var req uuidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UUID == "" {
		writeBadRequest(w, "uuid is required")
		return
	}
	if err := s.coordinator.SelectDevice(req.UUID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}

func (s *Server) handleModeSwitch(w http.ResponseWriter, r *http.Request) {
	var req uuidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UUID == "" {
		writeBadRequest(w, "uuid is required")
		return
	}
	mode, err := s.coordinator.ConfirmModeSwitch(req.UUID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":     mode,
		"snapshot": s.coordinator.Snapshot(),
	})
}

// handleActivate starts an attempt and returns at once. The outcome is
// published on the pairing WebSocket channel.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TimeoutMS < 0 {
		writeBadRequest(w, "timeout_ms must not be negative")
		return
	}

	done, err := s.coordinator.StartActivation(r.Context(), pairing.ActivateInput{
		UUID:     req.UUID,
		SSID:     req.SSID,
		Password: req.Password,
		IsShared: req.IsShared,
		Timeout:  time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snap := s.coordinator.Snapshot()
	attemptID := snap.AttemptID
	if attemptID == "" {
		// Already finished; the result is on its way to done.
		select {
		case res := <-done:
			attemptID = res.AttemptID
			snap = s.coordinator.Snapshot()
		case <-r.Context().Done():
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"attempt_id": attemptID,
		"state":      snap.State,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Cancel(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Reset(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}
