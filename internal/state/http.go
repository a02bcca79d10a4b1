package state

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves the stored ledger as JSON.
func Handler(m Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.LoadState(r.Context())
		if err != nil {
			slog.Error("Failed to load state", "error", err)
			http.Error(w, "failed to load state", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			slog.Error("Failed to write status response", "error", err)
		}
	})
}
