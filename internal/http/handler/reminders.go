package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medbuddy/internal/jobs"
	"medbuddy/internal/reminder"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

type ReminderHandler struct {
	Store *reminder.Store
	Sched *jobs.Scheduler
	Log   *zap.Logger
}

type createReminderReq struct {
	Medication string `json:"medication"`
	Time       string `json:"time"`
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReminderReq
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	id, err := h.save(r.Context(), req.Medication, req.Time)
	if err != nil {
		writeError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{"status": reminder.StatusScheduled, "id": id})
}

// save validates and persists the reminder, arms its timer, then broadcasts.
func (h *ReminderHandler) save(ctx context.Context, medication, timeText string) (uint64, error) {
	medication = strings.TrimSpace(medication)
	timeText = strings.TrimSpace(timeText)
	if medication == "" {
		return 0, fmt.Errorf("%w: medication required", reminder.ErrInvalidInput)
	}
	if timeText == "" {
		return 0, fmt.Errorf("%w: time required", reminder.ErrInvalidInput)
	}

	runAt, err := jobs.ParseTime(timeText, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %q", err, timeText)
	}

	id, err := h.Store.Create(ctx, medication, timeText, runAt)
	if err != nil {
		h.Log.Error("save reminder failed", zap.Error(err))
		return 0, err
	}

	// armed before replying so a cancel that follows always finds the timer
	if err := h.Sched.ScheduleAt(id, medication, runAt); err != nil {
		h.Log.Error("schedule reminder failed", zap.Uint64("reminder_id", id), zap.Error(err))
	}
	h.Sched.Broadcast(ctx)

	return id, nil
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.List(r.Context())
	if err != nil {
		// degrade to an empty list
		h.Log.Error("list reminders failed", zap.Error(err))
		rows = nil
	}
	if rows == nil {
		rows = []reminder.Reminder{}
	}
	render.JSON(w, r, rows)
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.Store.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.Sched.Cancel(id)
	if err := h.Store.Delete(r.Context(), id); err != nil {
		h.Log.Error("delete reminder failed", zap.Uint64("reminder_id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	h.Sched.Broadcast(r.Context())

	render.JSON(w, r, map[string]any{"status": "deleted", "id": id})
}

// SetStatus overrides the status directly. A terminal status disarms any
// pending timer; going back to scheduled re-arms it from the stored run time.
func (h *ReminderHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("status")))
	if !reminder.ValidStatus(status) {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	rem, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if reminder.Terminal(status) {
		h.Sched.Cancel(id)
	}
	if err := h.Store.SetStatus(r.Context(), id, status); err != nil {
		writeError(w, err)
		return
	}
	if status == reminder.StatusScheduled {
		if err := h.Sched.ScheduleAt(id, rem.Medication, rem.RunAt); err != nil {
			h.Log.Error("re-arm reminder failed", zap.Uint64("reminder_id", id), zap.Error(err))
		}
	}
	h.Sched.Broadcast(r.Context())

	render.JSON(w, r, map[string]any{"status": "updated", "id": id, "new_status": status})
}

func (h *ReminderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rem, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	status, err := h.cancel(r.Context(), rem)
	if err != nil {
		writeError(w, err)
		return
	}

	render.JSON(w, r, map[string]any{"status": status, "id": id})
}

type cancelByMedicationReq struct {
	Medication string `json:"medication"`
}

func (h *ReminderHandler) CancelByMedication(w http.ResponseWriter, r *http.Request) {
	var req cancelByMedicationReq
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Medication = strings.TrimSpace(req.Medication)
	if req.Medication == "" {
		http.Error(w, "medication name required", http.StatusBadRequest)
		return
	}

	rem, err := h.Store.FindLatestScheduled(r.Context(), req.Medication)
	if err != nil {
		writeError(w, fmt.Errorf("no active reminder found for %s: %w", req.Medication, err))
		return
	}

	status, err := h.cancel(r.Context(), rem)
	if err != nil {
		writeError(w, err)
		return
	}

	render.JSON(w, r, map[string]any{"status": status, "id": rem.ID, "medication": rem.Medication})
}

// cancel disarms the timer and moves a scheduled reminder to cancelled. It
// returns the resulting status; terminal reminders are left as they are.
func (h *ReminderHandler) cancel(ctx context.Context, rem reminder.Reminder) (string, error) {
	h.Sched.Cancel(rem.ID)

	changed, err := h.Store.Transition(ctx, rem.ID, reminder.StatusScheduled, reminder.StatusCancelled)
	if err != nil {
		h.Log.Error("cancel reminder failed", zap.Uint64("reminder_id", rem.ID), zap.Error(err))
		return "", err
	}
	h.Sched.Broadcast(ctx)

	if changed {
		return reminder.StatusCancelled, nil
	}
	cur, err := h.Store.Get(ctx, rem.ID)
	if err != nil {
		return "", err
	}
	return cur.Status, nil
}
