package terminalapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiwari-pos/terminal/internal/repository"
	"github.com/kiwari-pos/terminal/internal/terminal"
	log "github.com/sirupsen/logrus"
)

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"data": v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encode JSON response")
	}
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// writeActionError maps a terminal or repository error to a status code.
func writeActionError(w http.ResponseWriter, op string, err error) {
	var repoErr *terminal.RepositoryError
	switch {
	case terminal.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, terminal.ErrUnknownLine), errors.Is(err, terminal.ErrUnknownDiscount):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, terminal.ErrInvalidTransition), errors.Is(err, terminal.ErrOrderClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session expired, sign in again")
	case errors.As(err, &repoErr):
		log.WithError(err).WithField("op", op).Warn("repository call failed")
		writeError(w, http.StatusBadGateway, "could not reach the order service, try again")
	default:
		log.WithError(err).WithField("op", op).Error("terminal action")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
