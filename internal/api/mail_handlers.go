package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ignite/automail/internal/mailer"
)

// SendMailRequest is the single-send payload.
type SendMailRequest struct {
	Role          string                 `json:"role"`
	Recipients    []string               `json:"recipients"`
	Variables     map[string]interface{} `json:"variables"`
	CustomSubject string                 `json:"customSubject,omitempty"`
	SheetID       string                 `json:"sheetId,omitempty"`
}

// BulkMailRequest is the bulk-from-sheet payload.
type BulkMailRequest struct {
	SheetID         string                 `json:"sheetId"`
	Range           string                 `json:"range,omitempty"`
	Role            string                 `json:"role"`
	CommonVariables map[string]interface{} `json:"commonVariables,omitempty"`
}

// RecipientResult is one per-recipient outcome in a batch response.
type RecipientResult struct {
	Recipient  string      `json:"recipient,omitempty"`
	Row        interface{} `json:"row,omitempty"`
	Status     string      `json:"status"`
	MessageID  string      `json:"messageId,omitempty"`
	TrackingID string      `json:"trackingId,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type roleSummary struct {
	Role              string   `json:"role"`
	Name              string   `json:"name"`
	RequiredVariables []string `json:"requiredVariables"`
}

func (h *Handlers) roleSummaries() []roleSummary {
	all := h.templates.All()
	out := make([]roleSummary, 0, len(all))
	for _, t := range all {
		out = append(out, roleSummary{Role: t.Role, Name: t.Name, RequiredVariables: t.RequiredVariables()})
	}
	return out
}

func (h *Handlers) availableRoles() []string {
	all := h.templates.All()
	roles := make([]string, 0, len(all))
	for _, t := range all {
		roles = append(roles, t.Role)
	}
	return roles
}

// HandleMailStatus reports the mail surface and the loaded role catalog.
func (h *Handlers) HandleMailStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Mail API endpoint",
		"status":         "ready",
		"availableRoles": h.roleSummaries(),
	})
}

// HandleListTemplates returns every loaded template.
func (h *Handlers) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"templates": h.roleSummaries(),
	})
}

// HandleReloadTemplates rebuilds the template set from disk.
func (h *Handlers) HandleReloadTemplates(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Reload(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Templates reloaded",
		"templates": h.roleSummaries(),
	})
}

// HandlePreview renders a template without sending anything.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req SendMailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Role == "" {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":          "Role is required",
			"availableRoles": h.availableRoles(),
		})
		return
	}

	if ok, missing := h.templates.ValidateVariables(req.Role, req.Variables); !ok {
		tpl, found := h.templates.Get(req.Role)
		if !found {
			respondJSON(w, http.StatusNotFound, map[string]interface{}{
				"error":          "Template not found for role",
				"availableRoles": h.availableRoles(),
			})
			return
		}
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":             "Missing required variables",
			"missingVariables":  missing,
			"requiredVariables": tpl.RequiredVariables(),
		})
		return
	}

	trackingID := h.ledger.GenerateID()
	full := withTracking(req.Variables, trackingID, h.ledger.OpenURL(trackingID))

	rendered := h.templates.Render(req.Role, full)
	if rendered == nil {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":          "Template not found for role",
			"availableRoles": h.availableRoles(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"role":       req.Role,
		"subject":    rendered.Subject,
		"html":       rendered.HTML,
		"variables":  full,
		"trackingId": trackingID,
	})
}

// HandleSend is the single-send flow: validate, render per recipient with a
// fresh tracking id, attach the resume when it exists and report each
// recipient's outcome independently.
func (h *Handlers) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req SendMailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.Role == "" || len(req.Recipients) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "Role and recipients array are required",
			"example": SendMailRequest{
				Role:       "backend-developer",
				Recipients: []string{"hr@company.com"},
				Variables: map[string]interface{}{
					"companyName": "Tech Corp",
					"position":    "Senior Backend Developer",
				},
				SheetID: "optional-google-sheet-id",
			},
		})
		return
	}

	if ok, missing := h.templates.ValidateVariables(req.Role, req.Variables); !ok {
		tpl, found := h.templates.Get(req.Role)
		required := []string{}
		if found {
			required = tpl.RequiredVariables()
		}
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":             "Missing required variables",
			"missingVariables":  missing,
			"requiredVariables": required,
		})
		return
	}

	hasResume := h.resumeExists()

	results := make([]RecipientResult, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		trackingID := h.ledger.GenerateID()
		full := withTracking(req.Variables, trackingID, h.ledger.OpenURL(trackingID))

		rendered := h.templates.Render(req.Role, full)
		if rendered == nil {
			results = append(results, RecipientResult{Recipient: recipient, Status: "failed", Error: "Template not found"})
			continue
		}

		subject := rendered.Subject
		if req.CustomSubject != "" {
			subject = req.CustomSubject
		}

		msg := mailer.Message{
			To:      []string{recipient},
			Subject: subject,
			HTML:    rendered.HTML,
		}
		if hasResume {
			msg.Attachments = []mailer.Attachment{h.resumeAttachment()}
		}

		res := h.mail.Send(msg)
		if res.Success {
			h.ledger.RecordSent(r.Context(), trackingID, recipient, req.Role,
				stringVar(req.Variables, "companyName", "Unknown Company"),
				stringVar(req.Variables, "position", "Unknown Position"),
				req.SheetID)
			results = append(results, RecipientResult{
				Recipient:  recipient,
				Status:     "sent",
				MessageID:  res.MessageID,
				TrackingID: trackingID,
			})
		} else {
			results = append(results, RecipientResult{Recipient: recipient, Status: "failed", Error: res.Error})
		}

		if len(req.Recipients) > 1 {
			h.sleep(h.perRecipientDelay)
		}
	}

	successCount := 0
	for _, res := range results {
		if res.Status == "sent" {
			successCount++
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Email sending completed",
		"summary": map[string]interface{}{
			"total":          len(results),
			"successful":     successCount,
			"failed":         len(results) - successCount,
			"resumeAttached": hasResume,
		},
		"results": results,
	})
}

// HandleBulk sends one email per sheet row, merging common variables with
// per-row fields (row values win) and skipping rows that lack the
// essentials.
func (h *Handlers) HandleBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkMailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.SheetID == "" || req.Role == "" {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "Sheet ID and role are required",
			"example": BulkMailRequest{
				SheetID: "your-google-sheet-id",
				Role:    "backend-developer",
				Range:   "A:Z",
			},
		})
		return
	}
	if h.sheets == nil {
		respondError(w, http.StatusInternalServerError, "Google Sheets is not configured")
		return
	}

	readRange := req.Range
	if readRange == "" {
		readRange = "A:Z"
	}

	rows, err := h.sheets.GetRows(r.Context(), req.SheetID, readRange)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusBadRequest, "No data found in the specified sheet range")
		return
	}

	hasResume := h.resumeExists()

	results := make([]RecipientResult, 0, len(rows))
	for _, row := range rows {
		variables := make(map[string]interface{}, len(req.CommonVariables)+len(row)+2)
		for k, v := range req.CommonVariables {
			variables[k] = v
		}
		companyName := row["company"]
		if companyName == "" {
			companyName = row["companyname"]
		}
		variables["companyName"] = companyName
		variables["position"] = row["position"]
		for k, v := range row {
			variables[k] = v
		}

		if row["email"] == "" || companyName == "" || row["position"] == "" {
			results = append(results, RecipientResult{
				Row:    row,
				Status: "skipped",
				Error:  "Missing email, company, or position data",
			})
			continue
		}

		trackingID := h.ledger.GenerateID()
		full := withTracking(variables, trackingID, h.ledger.OpenURL(trackingID))

		rendered := h.templates.Render(req.Role, full)
		if rendered == nil {
			results = append(results, RecipientResult{Row: row, Status: "failed", Error: "Template not found"})
			continue
		}

		msg := mailer.Message{
			To:      []string{row["email"]},
			Subject: rendered.Subject,
			HTML:    rendered.HTML,
		}
		if hasResume {
			msg.Attachments = []mailer.Attachment{h.resumeAttachment()}
		}

		res := h.mail.Send(msg)
		if res.Success {
			h.ledger.RecordSent(r.Context(), trackingID, row["email"], req.Role, companyName, row["position"], req.SheetID)
			results = append(results, RecipientResult{
				Row:        row,
				Status:     "sent",
				MessageID:  res.MessageID,
				TrackingID: trackingID,
			})
		} else {
			results = append(results, RecipientResult{Row: row, Status: "failed", Error: res.Error})
		}

		h.sleep(h.bulkRowDelay)
	}

	sent, failed, skipped := 0, 0, 0
	for _, res := range results {
		switch res.Status {
		case "sent":
			sent++
		case "failed":
			failed++
		case "skipped":
			skipped++
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Bulk email sending completed",
		"summary": map[string]interface{}{
			"total":      len(results),
			"successful": sent,
			"failed":     failed,
			"skipped":    skipped,
		},
		"results": results,
	})
}

// HandleMailTest probes the SMTP relay and the sheets API.
func (h *Handlers) HandleMailTest(w http.ResponseWriter, r *http.Request) {
	emailStatus := "disconnected"
	if h.mail.VerifyConnection() {
		emailStatus = "connected"
	}
	sheetsStatus := "disconnected"
	if h.sheets != nil && h.sheets.VerifyConnection(r.Context()) {
		sheetsStatus = "connected"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"emailService": emailStatus,
		"googleSheets": sheetsStatus,
		"message":      "Service connection status checked",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
