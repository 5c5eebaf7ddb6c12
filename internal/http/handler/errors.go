package handler

import (
	"errors"
	"net/http"
	"strconv"

	"medbuddy/internal/jobs"
	"medbuddy/internal/reminder"
	"medbuddy/internal/vapi"

	"github.com/go-chi/chi/v5"
)

var errInvalidID = errors.New("invalid id")

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errInvalidID):
		http.Error(w, "invalid id", http.StatusBadRequest)
	case errors.Is(err, reminder.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, jobs.ErrInvalidTimeFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, reminder.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, vapi.ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, vapi.ErrExternalService):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func idParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return id, nil
}
