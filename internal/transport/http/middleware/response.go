package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError replies with the same {"error": msg} envelope the handlers
// use, so middleware rejections look no different to clients.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
