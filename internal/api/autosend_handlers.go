package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/automail/internal/mailer"
	"github.com/ignite/automail/internal/sheets"
)

// AutoSendRequest triggers a send over every pending sheet row.
type AutoSendRequest struct {
	SheetID string `json:"sheetId"`
}

// AutoSendResult is one pending row's outcome.
type AutoSendResult struct {
	Email      string `json:"email"`
	Success    bool   `json:"success"`
	TrackingID string `json:"trackingId,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HandleAutoSend processes every row marked pending: render, send with the
// resume attached, record the send, mirror tracking fields back to the same
// row and flip its send-status to processed. Row failures are reported
// individually and never stop the sweep.
func (h *Handlers) HandleAutoSend(w http.ResponseWriter, r *http.Request) {
	var req AutoSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SheetID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Sheet ID is required",
		})
		return
	}
	if h.sheets == nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "Google Sheets is not configured",
		})
		return
	}

	pending, err := h.sheets.GetPendingRows(r.Context(), req.SheetID)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	if len(pending) == 0 {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"message":    "No pending emails to send",
			"emailsSent": 0,
		})
		return
	}

	results := make([]AutoSendResult, 0, len(pending))
	successCount := 0

	for i, row := range pending {
		result := h.autoSendRow(r, req.SheetID, i, row)
		if result.Success {
			successCount++
		}
		results = append(results, result)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        messageForSweep(len(pending), successCount),
		"emailsSent":     successCount,
		"totalProcessed": len(pending),
		"results":        results,
	})
}

func messageForSweep(total, sent int) string {
	return fmt.Sprintf("Processed %d emails, %d sent successfully", total, sent)
}

func (h *Handlers) autoSendRow(r *http.Request, sheetID string, rowIndex int, row sheets.Row) AutoSendResult {
	email := row["email"]

	trackingID := h.ledger.GenerateID()

	role := row["role"]
	if role == "" {
		role = "general"
	}

	variables := map[string]interface{}{
		"companyName":    row["companyname"],
		"position":       row["subject"], // the sheet's Subject column doubles as the position
		"aboutCompany":   row["aboutcompany"],
		"whyInterested":  row["whyinterested"],
		"generalAboutMe": row["generalaboutme"],
		"whyBestFit":     row["whybestfit"],
	}
	full := withTracking(variables, trackingID, h.ledger.OpenURL(trackingID))

	if _, ok := h.templates.Get(role); !ok {
		return AutoSendResult{Email: email, Success: false, Error: "Template not found for role: " + role}
	}

	rendered := h.templates.Render(role, full)
	if rendered == nil {
		return AutoSendResult{Email: email, Success: false, Error: "Failed to render template for role: " + role}
	}

	msg := mailer.Message{
		To:          []string{email},
		Subject:     rendered.Subject,
		HTML:        rendered.HTML,
		Attachments: []mailer.Attachment{h.resumeAttachment()},
	}
	res := h.mail.Send(msg)
	if !res.Success {
		return AutoSendResult{Email: email, Success: false, Error: res.Error}
	}

	h.ledger.RecordSent(r.Context(), trackingID, email, role, row["companyname"], row["subject"], sheetID)

	// mirror the fresh tracking fields into the row right away so an open
	// event has a row to join against
	now := time.Now()
	zero := 0
	if err := h.sheets.UpsertTrackingFields(r.Context(), sheetID, trackingID, sheets.TrackingUpdate{
		Status:    "sent",
		SentAt:    &now,
		OpenCount: &zero,
	}); err != nil {
		return AutoSendResult{Email: email, Success: false, TrackingID: trackingID, Error: err.Error()}
	}

	if err := h.sheets.MarkRowProcessed(r.Context(), sheetID, rowIndex); err != nil {
		return AutoSendResult{Email: email, Success: false, TrackingID: trackingID, Error: err.Error()}
	}

	return AutoSendResult{Email: email, Success: true, TrackingID: trackingID, MessageID: res.MessageID}
}

// HandleAutoSendCheck previews pending rows without sending.
func (h *Handlers) HandleAutoSendCheck(w http.ResponseWriter, r *http.Request) {
	sheetID := chi.URLParam(r, "sheetID")

	if h.sheets == nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "Google Sheets is not configured",
		})
		return
	}

	pending, err := h.sheets.GetPendingRows(r.Context(), sheetID)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	preview := make([]map[string]string, 0, len(pending))
	for _, row := range pending {
		preview = append(preview, map[string]string{
			"email":       row["email"],
			"companyName": row["companyname"],
			"subject":     row["subject"],
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"pendingCount":  len(pending),
		"pendingEmails": preview,
	})
}
