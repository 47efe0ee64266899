package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HandleGetSheet returns the normalized rows of a sheet range.
func (h *Handlers) HandleGetSheet(w http.ResponseWriter, r *http.Request) {
	sheetID := chi.URLParam(r, "sheetID")
	if h.sheets == nil {
		respondError(w, http.StatusInternalServerError, "Google Sheets is not configured")
		return
	}

	readRange := r.URL.Query().Get("range")
	if readRange == "" {
		readRange = "A:Z"
	}

	rows, err := h.sheets.GetRows(r.Context(), sheetID, readRange)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sheetId": sheetID,
		"range":   readRange,
		"data":    rows,
		"count":   len(rows),
	})
}

// HandleSheetsTest probes service account auth.
func (h *Handlers) HandleSheetsTest(w http.ResponseWriter, r *http.Request) {
	connected := h.sheets != nil && h.sheets.VerifyConnection(r.Context())

	status := "disconnected"
	message := "Google Sheets service connection failed"
	if connected {
		status = "connected"
		message = "Google Sheets service is working properly"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"googleSheets": status,
		"message":      message,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
