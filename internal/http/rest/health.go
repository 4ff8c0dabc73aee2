package rest

import "net/http"

// HandleHealth reports that the process is serving requests.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
