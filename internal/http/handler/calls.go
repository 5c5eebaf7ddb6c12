package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

type CallGateway interface {
	PlaceCall(ctx context.Context, medication, message string) error
	TestConnection(ctx context.Context) error
	ListPhoneNumbers(ctx context.Context) ([]json.RawMessage, error)
}

type CallHandler struct {
	Calls CallGateway
	Log   *zap.Logger
}

type triggerCallReq struct {
	Medication string `json:"medication"`
	Message    string `json:"message"`
}

// TriggerCall places a one-off call unrelated to any stored reminder. The
// call runs in the background; the response does not wait for it.
func (h *CallHandler) TriggerCall(w http.ResponseWriter, r *http.Request) {
	var req triggerCallReq
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	medication := strings.TrimSpace(req.Medication)
	if medication == "" {
		medication = "general"
	}
	message := strings.TrimSpace(req.Message)

	go func() {
		if err := h.Calls.PlaceCall(context.Background(), medication, message); err != nil {
			h.Log.Error("manual call failed", zap.String("medication", medication), zap.Error(err))
		}
	}()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]any{"status": "calling"})
}

func (h *CallHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.Calls.TestConnection(r.Context()); err != nil {
		h.Log.Warn("call service connection check failed", zap.Error(err))
		writeError(w, err)
		return
	}
	render.JSON(w, r, map[string]any{"status": "success", "message": "VAPI connection successful"})
}

func (h *CallHandler) PhoneNumbers(w http.ResponseWriter, r *http.Request) {
	nums, err := h.Calls.ListPhoneNumbers(r.Context())
	if err != nil {
		h.Log.Warn("list phone numbers failed", zap.Error(err))
		writeError(w, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status":        "success",
		"phone_numbers": nums,
		"message":       fmt.Sprintf("Found %d phone number(s)", len(nums)),
	})
}

// SayReminder is the tool webhook the voice assistant hits while speaking.
func (h *CallHandler) SayReminder(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	h.Log.Info("say_reminder received", zap.Any("message", payload["message"]))
	render.JSON(w, r, map[string]any{"status": "ok"})
}
