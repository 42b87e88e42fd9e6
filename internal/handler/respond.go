package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/terminal/internal/database"
	log "github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encode JSON response")
	}
}

// writeData wraps v in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter, op string, err error) {
	log.WithError(err).Error(op)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func numericToString(n pgtype.Numeric) string {
	return database.NumericToDecimal(n).StringFixed(2)
}
