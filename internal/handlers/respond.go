package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"finsight/internal/contextutil"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, ctx context.Context, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, ctx context.Context, status int, message string) {
	writeJSON(w, ctx, status, ErrorResponse{Error: message})
}
