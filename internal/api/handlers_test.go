package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/automail/internal/mailer"
	"github.com/ignite/automail/internal/sheets"
	"github.com/ignite/automail/internal/template"
	"github.com/ignite/automail/internal/tracking"
)

type fakeMailer struct {
	verifyOK bool
	failFor  map[string]string // recipient -> error
	sent     []mailer.Message
}

func (f *fakeMailer) VerifyConnection() bool { return f.verifyOK }

func (f *fakeMailer) Send(msg mailer.Message) mailer.Result {
	f.sent = append(f.sent, msg)
	recipient := ""
	if len(msg.To) > 0 {
		recipient = msg.To[0]
	}
	if errMsg, ok := f.failFor[recipient]; ok {
		return mailer.Result{Recipient: recipient, Success: false, Error: errMsg}
	}
	return mailer.Result{Recipient: recipient, Success: true, MessageID: "<mid@test>"}
}

type fakeSheets struct {
	rows       []sheets.Row
	pending    []sheets.Row
	getErr     error
	upserts    []string // tracking ids
	processed  []int    // row indexes
	verifiedOK bool
}

func (f *fakeSheets) GetRows(context.Context, string, string) ([]sheets.Row, error) {
	return f.rows, f.getErr
}

func (f *fakeSheets) GetPendingRows(context.Context, string) ([]sheets.Row, error) {
	return f.pending, f.getErr
}

func (f *fakeSheets) MarkRowProcessed(_ context.Context, _ string, rowIndex int) error {
	f.processed = append(f.processed, rowIndex)
	return nil
}

func (f *fakeSheets) UpsertTrackingFields(_ context.Context, _, trackingID string, _ sheets.TrackingUpdate) error {
	f.upserts = append(f.upserts, trackingID)
	return nil
}

func (f *fakeSheets) VerifyConnection(context.Context) bool { return f.verifiedOK }

func testTemplates(t *testing.T) *template.Service {
	t.Helper()
	dir := t.TempDir()
	body := `<p>{{companyName}} / {{position}}</p><img src="{{trackingUrl}}" />`
	for _, name := range []string{"backend.html", "platform.html", "intern.html", "general.html"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return template.NewService(dir)
}

type env struct {
	handlers *Handlers
	mail     *fakeMailer
	sheets   *fakeSheets
	ledger   *tracking.Ledger
	sleeps   []time.Duration
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mail := &fakeMailer{verifyOK: true, failFor: map[string]string{}}
	gw := &fakeSheets{verifiedOK: true}
	ledger := tracking.NewLedger("http://localhost:3000", nil)

	e := &env{mail: mail, sheets: gw, ledger: ledger}
	h := NewHandlers(testTemplates(t), mail, gw, ledger,
		filepath.Join(t.TempDir(), "resume.pdf"), 2*time.Second, 3*time.Second)
	h.sleep = func(d time.Duration) { e.sleeps = append(e.sleeps, d) }
	e.handlers = h
	return e
}

func postJSON(t *testing.T, handler http.HandlerFunc, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func fullVars() map[string]interface{} {
	return map[string]interface{}{
		"companyName": "Acme", "position": "SWE", "aboutCompany": "x",
		"whyInterested": "x", "generalAboutMe": "x", "whyBestFit": "x",
	}
}

func TestHandleSendRequiresRoleAndRecipients(t *testing.T) {
	e := newEnv(t)

	rec := postJSON(t, e.handlers.HandleSend, SendMailRequest{Role: "general"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, e.handlers.HandleSend, SendMailRequest{Recipients: []string{"a@x.com"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.mail.sent)
}

func TestHandleSendReportsMissingVariables(t *testing.T) {
	e := newEnv(t)

	rec := postJSON(t, e.handlers.HandleSend, SendMailRequest{
		Role:       "backend-developer",
		Recipients: []string{"hr@acme.com"},
		Variables:  map[string]interface{}{"companyName": "Acme"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, "Missing required variables", out["error"])
	assert.Contains(t, out["missingVariables"], "position")
}

func TestHandleSendPerRecipientResults(t *testing.T) {
	e := newEnv(t)
	e.mail.failFor["bad@acme.com"] = "550 rejected"

	rec := postJSON(t, e.handlers.HandleSend, SendMailRequest{
		Role:       "general",
		Recipients: []string{"good@acme.com", "bad@acme.com", "also-good@acme.com"},
		Variables:  fullVars(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	results := out["results"].([]interface{})
	require.Len(t, results, 3)

	first := results[0].(map[string]interface{})
	second := results[1].(map[string]interface{})
	third := results[2].(map[string]interface{})

	assert.Equal(t, "sent", first["status"])
	assert.NotEmpty(t, first["trackingId"])
	assert.Equal(t, "failed", second["status"])
	assert.Equal(t, "550 rejected", second["error"])
	// one failure never aborts the rest of the batch
	assert.Equal(t, "sent", third["status"])

	summary := out["summary"].(map[string]interface{})
	assert.Equal(t, float64(3), summary["total"])
	assert.Equal(t, float64(2), summary["successful"])
	assert.Equal(t, float64(1), summary["failed"])

	// fixed delay between recipients for multi-recipient batches
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, e.sleeps)

	// successful sends are in the ledger
	stats := e.ledger.Stats()
	assert.Equal(t, 2, stats.TotalSent)
}

func TestHandleSendSingleRecipientSkipsDelay(t *testing.T) {
	e := newEnv(t)

	rec := postJSON(t, e.handlers.HandleSend, SendMailRequest{
		Role:       "general",
		Recipients: []string{"hr@acme.com"},
		Variables:  fullVars(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.sleeps)
}

func TestHandleBulkSkipsIncompleteRows(t *testing.T) {
	e := newEnv(t)
	e.sheets.rows = []sheets.Row{
		{"email": "a@acme.com", "companyname": "Acme", "position": "SWE"},
		{"email": "", "companyname": "Globex", "position": "SRE"},
		{"email": "c@initech.com", "companyname": "Initech", "position": "Platform"},
	}

	rec := postJSON(t, e.handlers.HandleBulk, BulkMailRequest{
		SheetID: "sheet-1",
		Role:    "general",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	summary := out["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["successful"])
	assert.Equal(t, float64(1), summary["skipped"])
	assert.Equal(t, float64(0), summary["failed"])

	// exactly two sends were attempted
	assert.Len(t, e.mail.sent, 2)
	assert.Equal(t, []string{"a@acme.com"}, e.mail.sent[0].To)
	assert.Equal(t, []string{"c@initech.com"}, e.mail.sent[1].To)
}

func TestHandleBulkRowVariablesWinOverCommon(t *testing.T) {
	e := newEnv(t)
	e.sheets.rows = []sheets.Row{
		{"email": "a@acme.com", "companyname": "Acme", "position": "SWE", "whyinterested": "row-level"},
	}

	rec := postJSON(t, e.handlers.HandleBulk, BulkMailRequest{
		SheetID:         "sheet-1",
		Role:            "general",
		CommonVariables: map[string]interface{}{"whyinterested": "common-level"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, e.mail.sent, 1)
	assert.Contains(t, e.mail.sent[0].HTML, "Acme / SWE")
}

func TestHandleBulkRequiresSheetAndRole(t *testing.T) {
	e := newEnv(t)
	rec := postJSON(t, e.handlers.HandleBulk, BulkMailRequest{SheetID: "sheet-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBulkEmptySheet(t *testing.T) {
	e := newEnv(t)
	e.sheets.rows = []sheets.Row{}
	rec := postJSON(t, e.handlers.HandleBulk, BulkMailRequest{SheetID: "sheet-1", Role: "general"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBulkSheetErrorPropagates(t *testing.T) {
	e := newEnv(t)
	e.sheets.getErr = errors.New("permission denied")
	rec := postJSON(t, e.handlers.HandleBulk, BulkMailRequest{SheetID: "sheet-1", Role: "general"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleAutoSend(t *testing.T) {
	e := newEnv(t)
	e.sheets.pending = []sheets.Row{
		{"email": "a@acme.com", "companyname": "Acme", "subject": "Backend Engineer", "sendstatus": "SENT"},
		{"email": "b@globex.com", "companyname": "Globex", "subject": "SRE", "sendstatus": "SENT", "role": "platform-engineer"},
	}

	rec := postJSON(t, e.handlers.HandleAutoSend, AutoSendRequest{SheetID: "sheet-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(2), out["emailsSent"])
	assert.Equal(t, float64(2), out["totalProcessed"])

	// every sent row got its tracking fields mirrored and was marked processed
	assert.Len(t, e.sheets.upserts, 2)
	assert.Equal(t, []int{0, 1}, e.sheets.processed)

	// resume goes along unconditionally on auto-send
	require.Len(t, e.mail.sent, 2)
	require.Len(t, e.mail.sent[0].Attachments, 1)
	assert.Equal(t, "resume.pdf", e.mail.sent[0].Attachments[0].Filename)

	stats := e.ledger.Stats()
	assert.Equal(t, 2, stats.TotalSent)
}

func TestHandleAutoSendTransportFailureCountsAsRowFailure(t *testing.T) {
	e := newEnv(t)
	e.mail.failFor["a@acme.com"] = "connection reset"
	e.sheets.pending = []sheets.Row{
		{"email": "a@acme.com", "companyname": "Acme", "subject": "SWE", "sendstatus": "SENT"},
		{"email": "b@globex.com", "companyname": "Globex", "subject": "SRE", "sendstatus": "SENT"},
	}

	rec := postJSON(t, e.handlers.HandleAutoSend, AutoSendRequest{SheetID: "sheet-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, float64(1), out["emailsSent"])
	// the failed row is neither mirrored nor marked processed
	assert.Len(t, e.sheets.upserts, 1)
	assert.Equal(t, []int{1}, e.sheets.processed)
}

func TestHandleAutoSendNoPending(t *testing.T) {
	e := newEnv(t)

	rec := postJSON(t, e.handlers.HandleAutoSend, AutoSendRequest{SheetID: "sheet-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, "No pending emails to send", out["message"])
	assert.Equal(t, float64(0), out["emailsSent"])
}

func TestHandleAutoSendRequiresSheetID(t *testing.T) {
	e := newEnv(t)
	rec := postJSON(t, e.handlers.HandleAutoSend, AutoSendRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePreview(t *testing.T) {
	e := newEnv(t)

	rec := postJSON(t, e.handlers.HandlePreview, SendMailRequest{
		Role:      "general",
		Variables: fullVars(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.NotEmpty(t, out["trackingId"])
	assert.Contains(t, out["html"], "Acme / SWE")
	assert.Contains(t, out["html"], "/api/track/open/")
	// nothing was sent or recorded
	assert.Empty(t, e.mail.sent)
	assert.Equal(t, 0, e.ledger.Stats().TotalSent)
}

func TestHandlePreviewUnknownRole(t *testing.T) {
	e := newEnv(t)
	rec := postJSON(t, e.handlers.HandlePreview, SendMailRequest{
		Role:      "staff-magician",
		Variables: fullVars(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMailTest(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.handlers.HandleMailTest(rec, req)

	out := decode(t, rec)
	assert.Equal(t, "connected", out["emailService"])
	assert.Equal(t, "connected", out["googleSheets"])
}

func TestRoutesServeBeaconAndHealth(t *testing.T) {
	e := newEnv(t)
	router := SetupRoutes(e.handlers, tracking.NewHandler(e.ledger))

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/track/open/some-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/gif", resp.Header.Get("Content-Type"))
}
