package handler

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"medbuddy/internal/jobs"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

var chatReminderRe = regexp.MustCompile(`(?i)^\s*remind me to take (.+) at (.+?)\s*$`)

const chatHelp = "MedBuddy: I can set reminders if you say 'Remind me to take [medication] at [time]'."

type chatReq struct {
	Message string `json:"message"`
}

// Chat understands "Remind me to take X at Y" and schedules it.
func (h *ReminderHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatReq
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	m := chatReminderRe.FindStringSubmatch(req.Message)
	if m == nil {
		render.JSON(w, r, map[string]any{"reply": chatHelp})
		return
	}
	medication, timeText := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])

	id, err := h.save(r.Context(), medication, timeText)
	switch {
	case errors.Is(err, jobs.ErrInvalidTimeFormat):
		render.JSON(w, r, map[string]any{"reply": fmt.Sprintf("Sorry, I couldn't understand the time %q.", timeText)})
		return
	case err != nil:
		writeError(w, err)
		return
	}

	h.Log.Info("reminder set from chat", zap.Uint64("reminder_id", id))
	render.JSON(w, r, map[string]any{
		"reply": fmt.Sprintf("Reminder set for %s at %s!", medication, timeText),
		"id":    id,
	})
}
