package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/audit"
	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/middleware"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/service"
	"github.com/openclaw/session-server-go/internal/sse"
)

// PairingOperations is implemented by *service.PairingService.
type PairingOperations interface {
	Initiate(ctx context.Context, deviceName, deviceID string) (*service.PairingInitiation, error)
	Lookup(ctx context.Context, code string) (*model.PairingRequest, error)
	Authorize(ctx context.Context, code, userID string) (*service.IssuedSession, error)
	Poll(ctx context.Context, code, deviceID string) (*service.PairingPollResult, error)
	Status(ctx context.Context, code, deviceID string) (*service.PairingPollResult, error)
}

// EventSubscriber is implemented by *sse.Broker.
type EventSubscriber interface {
	Subscribe(topic string) *sse.Client
	Unsubscribe(client *sse.Client)
}

type PairingHandler struct {
	pairing PairingOperations
	events  EventSubscriber
}

func NewPairingHandler(pairing PairingOperations, events EventSubscriber) *PairingHandler {
	return &PairingHandler{pairing: pairing, events: events}
}

// POST /v1/pairing
// Called by the device. No authentication.
func (h *PairingHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceName string `json:"deviceName"`
		DeviceID   string `json:"deviceId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	init, err := h.pairing.Initiate(r.Context(), req.DeviceName, req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventPairingInitiate,
		Details: map[string]interface{}{"deviceId": req.DeviceID, "deviceName": req.DeviceName},
	})

	writeJSON(w, http.StatusCreated, init)
}

// GET /v1/pairing/{code}?deviceId=
// Polled by the device. Tokens are in the response exactly once.
func (h *PairingHandler) Poll(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeError(w, apperrors.MissingRequired("deviceId"))
		return
	}

	result, err := h.pairing.Poll(r.Context(), code, deviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Tokens != nil {
		log.Info().Str("deviceId", deviceID).Msg("pairing tokens collected")
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /v1/pairing/{code}/details
// Lets the signed-in browser show which device is asking before approving.
func (h *PairingHandler) Details(w http.ResponseWriter, r *http.Request) {
	req, err := h.pairing.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deviceName": req.DeviceName,
		"createdAt":  req.CreatedAt.Format(time.RFC3339),
		"expiresAt":  req.ExpiresAt.Format(time.RFC3339),
	})
}

// POST /v1/pairing/authorize
// The browser approves a code for the signed-in user. The new session's
// tokens go to the device, never to this response.
func (h *PairingHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())

	issued, err := h.pairing.Authorize(r.Context(), req.Code, userID)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventPairingRejected,
			UserID:  userID,
			Details: map[string]interface{}{"reason": err},
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventPairingAuthorize,
		UserID:    userID,
		SessionID: issued.Session.ID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": issued.Session.ID,
	})
}

// GET /v1/pairing/{code}/events?deviceId=
// Streams the request status to a waiting device: a "status" event on
// connect, then "authorized" or "expired". The stream ends with either; the
// device collects its tokens with a normal poll.
func (h *PairingHandler) Events(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeError(w, apperrors.MissingRequired("deviceId"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	ctx := r.Context()

	client := h.events.Subscribe(service.PairingTopic(code))
	defer h.events.Unsubscribe(client)

	status, err := h.pairing.Status(ctx, code, deviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := sendEvent(w, flusher, "status", status); err != nil {
		return
	}
	if status.Status == model.PairingStatusAuthorized {
		return
	}

	expiry := time.NewTimer(time.Until(status.ExpiresAt))
	defer expiry.Stop()

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-client.Done:
			return

		case event := <-client.Events:
			if err := sendRawEvent(w, flusher, event); err != nil {
				log.Debug().Err(err).Msg("failed to send pairing event")
				return
			}
			if event.Type == service.PairingEventAuthorized {
				return
			}

		case <-expiry.C:
			sendEvent(w, flusher, "expired", map[string]string{"status": string(model.PairingStatusExpired)})
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
