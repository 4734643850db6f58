package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/thinglink-core/internal/audit"
	"github.com/nerrad567/thinglink-core/internal/control"
	"github.com/nerrad567/thinglink-core/internal/device"
	"github.com/nerrad567/thinglink-core/internal/status"
)

// defaultDeviceLimit caps GET /devices when no limit is given.
const defaultDeviceLimit = 50

// deviceView is a paired device with its live status.
type deviceView struct {
	device.PairedDevice
	Online     bool           `json:"online"`
	DataPoints map[string]any `json:"data_points,omitempty"`
}

// commandRequest selects a DP by id, by code or by named command.
// Exactly one selector must be set.
type commandRequest struct {
	DPID    *int   `json:"dp_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Command string `json:"command,omitempty"`
	Value   any    `json:"value"`
}

// handleListDevices returns recently paired devices, newest first.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeviceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recent := s.devices.Recent(limit)
	views := make([]deviceView, 0, len(recent))
	for _, d := range recent {
		view := deviceView{PairedDevice: d}
		if st, ok := s.status.Get(d.DevID); ok {
			view.Online = st.Online
			view.DataPoints = st.DataPoints
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleDeleteDevice unbinds a device at the provider and forgets it
// locally.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.devices.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}

	if s.remover != nil {
		if err := s.remover.RemoveDevice(r.Context(), id); err != nil {
			s.logger.Warn("provider device removal failed", "device_id", id, "error", err)
			writeDomainError(w, err)
			return
		}
	}
	if err := s.devices.Remove(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.status.Remove(id)

	if s.audit != nil {
		var subject string
		if claims := claimsFrom(r.Context()); claims != nil {
			subject = claims.Subject
		}
		s.audit.DeviceRemoved(r.Context(), id, subject, audit.SourceAPI)
	}
	s.logger.Info("device removed", "device_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetStatus returns the cached state of a device. With
// ?readable=true the DP keys are replaced by their codes.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := s.status.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no status for device")
		return
	}

	if readable, _ := strconv.ParseBool(r.URL.Query().Get("readable")); readable {
		writeJSON(w, http.StatusOK, readableState(st, s.codec.Readable(st.DataPoints)))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func readableState(st status.DeviceState, dps map[string]any) map[string]any {
	return map[string]any{
		"device_id":   st.DeviceID,
		"online":      st.Online,
		"data_points": dps,
		"last_update": st.LastUpdate,
	}
}

// handleCommand encodes and publishes one DP command.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	selectors := 0
	if req.DPID != nil {
		selectors++
	}
	if req.Code != "" {
		selectors++
	}
	if req.Command != "" {
		selectors++
	}
	if selectors != 1 {
		writeBadRequest(w, "exactly one of dp_id, code or command is required")
		return
	}

	var (
		res control.Result
		err error
	)
	switch {
	case req.DPID != nil:
		res, err = s.controller.Send(r.Context(), id, *req.DPID, req.Value)
	case req.Code != "":
		res, err = s.controller.SendCode(r.Context(), id, req.Code, req.Value)
	default:
		res, err = s.controller.Execute(r.Context(), id, req.Command, req.Value)
	}
	if s.metrics != nil {
		s.metrics.CommandSent(err)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListDataPoints returns the data point registry.
func (s *Server) handleListDataPoints(w http.ResponseWriter, _ *http.Request) {
	all := s.codec.Registry().All()
	writeJSON(w, http.StatusOK, map[string]any{
		"datapoints": all,
		"count":      len(all),
	})
}

// handleListAudit pages through the audit trail.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "audit trail is disabled")
		return
	}

	q := r.URL.Query()
	f := audit.Filter{Action: q.Get("action"), EntityID: q.Get("entity_id")}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	page, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
