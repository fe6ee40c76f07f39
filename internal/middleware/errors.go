package middleware

import (
	"encoding/json"
	"net/http"

	"tabletalk-web/internal/models"
)

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: GetRequestID(r.Context()),
		},
	})
}
