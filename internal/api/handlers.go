// Package api wires the mail-merge flows to the HTTP surface. Each flow is
// sequential per spec: rows and recipients are processed one at a time with
// fixed delays between sends, and a failure on one item never aborts the rest.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ignite/automail/internal/mailer"
	"github.com/ignite/automail/internal/sheets"
	"github.com/ignite/automail/internal/template"
)

// templateRenderer is the template service surface the flows need.
type templateRenderer interface {
	Get(role string) (template.RoleTemplate, bool)
	All() []template.RoleTemplate
	Render(role string, variables map[string]interface{}) *template.Rendered
	ValidateVariables(role string, variables map[string]interface{}) (bool, []string)
	Reload() error
}

// mailSender submits messages; failures come back in-band.
type mailSender interface {
	VerifyConnection() bool
	Send(msg mailer.Message) mailer.Result
}

// SheetGateway is the spreadsheet surface the flows need. May be absent
// when no service account is configured.
type SheetGateway interface {
	GetRows(ctx context.Context, sheetID, readRange string) ([]sheets.Row, error)
	GetPendingRows(ctx context.Context, sheetID string) ([]sheets.Row, error)
	MarkRowProcessed(ctx context.Context, sheetID string, rowIndex int) error
	UpsertTrackingFields(ctx context.Context, sheetID, trackingID string, u sheets.TrackingUpdate) error
	VerifyConnection(ctx context.Context) bool
}

// ledgerStore is the tracking ledger surface used when sending.
type ledgerStore interface {
	GenerateID() string
	OpenURL(trackingID string) string
	RecordSent(ctx context.Context, trackingID, recipient, role, companyName, position, sheetID string)
}

// Handlers holds the orchestration dependencies.
type Handlers struct {
	templates templateRenderer
	mail      mailSender
	sheets    SheetGateway
	ledger    ledgerStore

	resumePath        string
	perRecipientDelay time.Duration
	bulkRowDelay      time.Duration

	// seam for tests
	sleep func(time.Duration)
}

// NewHandlers creates the handler set. sheetsGW may be nil when sheet
// integration is not configured.
func NewHandlers(templates templateRenderer, mail mailSender, sheetsGW SheetGateway, ledger ledgerStore, resumePath string, perRecipientDelay, bulkRowDelay time.Duration) *Handlers {
	return &Handlers{
		templates:         templates,
		mail:              mail,
		sheets:            sheetsGW,
		ledger:            ledger,
		resumePath:        resumePath,
		perRecipientDelay: perRecipientDelay,
		bulkRowDelay:      bulkRowDelay,
		sleep:             time.Sleep,
	}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HandleRoot reports the service banner.
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "AutoMail API Server",
		"status":    "running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"features": []string{
			"Role-based HTML email templates",
			"Email tracking with open analytics",
			"Google Sheets integration",
			"Resume attachment support",
			"Bulk email sending",
		},
	})
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) resumeExists() bool {
	if h.resumePath == "" {
		return false
	}
	info, err := os.Stat(h.resumePath)
	return err == nil && !info.IsDir()
}

func (h *Handlers) resumeAttachment() mailer.Attachment {
	return mailer.Attachment{
		Filename:    "resume.pdf",
		Path:        h.resumePath,
		ContentType: "application/pdf",
	}
}

// stringVar pulls a variable out of the bag as a string, with a fallback.
func stringVar(vars map[string]interface{}, key, fallback string) string {
	v, ok := vars[key]
	if !ok || v == nil {
		return fallback
	}
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return fallback
	}
	return s
}

// withTracking copies the variable bag and injects the tracking variables.
func withTracking(vars map[string]interface{}, trackingID, trackingURL string) map[string]interface{} {
	full := make(map[string]interface{}, len(vars)+2)
	for k, v := range vars {
		full[k] = v
	}
	full["trackingId"] = trackingID
	full["trackingUrl"] = trackingURL
	return full
}
