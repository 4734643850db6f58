package provider

import (
	"encoding/json"

	"github.com/nerrad567/thinglink-core/internal/pairing"
)

// request is published on {p}/request/{action}.
type request struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Params    any    `json:"params,omitempty"`
	SentAt    int64  `json:"sent_at"`
}

// response arrives on {p}/response/{request_id}.
type response struct {
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type homeParams struct {
	HomeID string `json:"home_id"`
}

type scanParams struct {
	TimeoutMS int64 `json:"timeout_ms"`
}

type uuidParams struct {
	UUID string `json:"uuid"`
}

type deviceParams struct {
	DevID string `json:"dev_id"`
}

type publishParams struct {
	DevID string `json:"dev_id"`
	DPs   string `json:"dps"`
}

// activateParams flattens pairing.ActivationRequest for the wire. The
// password travels only here, never in logs.
type activateParams struct {
	AttemptID  string `json:"attempt_id"`
	HomeID     string `json:"home_id"`
	UUID       string `json:"uuid,omitempty"`
	DeviceType int    `json:"device_type,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	Address    string `json:"address,omitempty"`
	MAC        string `json:"mac,omitempty"`
	IsShared   bool   `json:"is_shared,omitempty"`
	Token      string `json:"token,omitempty"`
	SSID       string `json:"ssid,omitempty"`
	Password   string `json:"password,omitempty"`
	TimeoutMS  int64  `json:"timeout_ms"`
}

func newActivateParams(req pairing.ActivationRequest) activateParams {
	return activateParams{
		AttemptID:  req.AttemptID,
		HomeID:     req.HomeID,
		UUID:       req.UUID,
		DeviceType: req.DeviceType,
		ProductID:  req.ProductID,
		Address:    req.Address,
		MAC:        req.MAC,
		IsShared:   req.IsShared,
		Token:      req.Token,
		SSID:       req.SSID,
		Password:   req.Password,
		TimeoutMS:  req.Timeout.Milliseconds(),
	}
}

type tokenData struct {
	Token string `json:"token"`
}

type stoppedData struct {
	Stopped bool `json:"stopped"`
}

// dpEvent is the payload of a device dp event.
type dpEvent struct {
	DPStr *string `json:"dp_str"`
}

// statusEvent is the payload of a device status event.
type statusEvent struct {
	Online bool `json:"online"`
}
