// Package sheets reads and writes the external outreach spreadsheet.
//
// Every read and write keys off case-insensitive substring matches against
// the sheet's header row rather than fixed column indices. The external
// sheet's column order is not guaranteed stable, so this heuristic matching
// must not be replaced with positional columns.
package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/ignite/automail/internal/pkg/logger"
)

const spreadsheetScope = "https://www.googleapis.com/auth/spreadsheets"

// fullRange covers every column we ever touch.
const fullRange = "A:Z"

// Row maps normalized header names (lower-cased, whitespace stripped) to
// string cell values. Shape is driven entirely by the external sheet.
type Row map[string]string

// TrackingUpdate carries the subset of tracking fields to mirror into a
// sheet row. Nil pointers and the empty Status mean "leave untouched".
type TrackingUpdate struct {
	Status      string
	SentAt      *time.Time
	FirstOpenAt *time.Time
	LastOpenAt  *time.Time
	OpenCount   *int
}

// TrackingEntry is a full tracking record flattened for a new sheet row.
type TrackingEntry struct {
	TrackingID  string
	Recipient   string
	Role        string
	CompanyName string
	Position    string
	SentAt      time.Time
	FirstOpenAt *time.Time
	LastOpenAt  *time.Time
	OpenCount   int
	Status      string
}

// valuesAPI is the slice of the Sheets values API the service needs.
// The production implementation wraps sheets/v4; tests use a fake.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
	Update(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error
	Append(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error
}

// Service is the spreadsheet gateway.
type Service struct {
	api    valuesAPI
	tokens oauth2.TokenSource
	loc    *time.Location
}

// NewService builds a gateway authenticated as a Google service account.
func NewService(ctx context.Context, clientEmail, privateKey string) (*Service, error) {
	conf := &jwt.Config{
		Email:      clientEmail,
		PrivateKey: []byte(privateKey),
		Scopes:     []string{spreadsheetScope},
		TokenURL:   google.JWTTokenURL,
	}

	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}

	return &Service{
		api:    &googleValues{svc: svc},
		tokens: conf.TokenSource(ctx),
		loc:    istLocation(),
	}, nil
}

func newServiceWithAPI(api valuesAPI) *Service {
	return &Service{api: api, loc: istLocation()}
}

// istLocation returns the fixed timezone used for every timestamp written to
// the sheet. Existing sheets already hold IST-formatted values, so this must
// not follow the server's local zone.
func istLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// FormatTimestamp renders a timestamp the way existing sheets expect:
// day/month/year, 24-hour clock, IST.
func (s *Service) FormatTimestamp(t time.Time) string {
	return t.In(s.loc).Format("02/01/2006, 15:04:05")
}

// VerifyConnection probes service-account auth; any failure collapses to false.
func (s *Service) VerifyConnection(ctx context.Context) bool {
	if s.tokens == nil {
		return false
	}
	if _, err := s.tokens.Token(); err != nil {
		logger.Warn("sheets connection check failed", "error", err.Error())
		return false
	}
	return true
}

func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), "")
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// GetRows reads a range, treating row 1 as headers. Header names become
// normalized map keys; absent cells map to the empty string. Transport and
// auth errors propagate.
func (s *Service) GetRows(ctx context.Context, sheetID, readRange string) ([]Row, error) {
	values, err := s.api.Get(ctx, sheetID, readRange)
	if err != nil {
		return nil, fmt.Errorf("get sheet data: %w", err)
	}
	if len(values) == 0 {
		return []Row{}, nil
	}

	headers := make([]string, len(values[0]))
	for i, h := range values[0] {
		headers[i] = normalizeHeader(cellString(h))
	}

	rows := make([]Row, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := Row{}
		for i, h := range headers {
			if i < len(raw) {
				row[h] = cellString(raw[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// GetPendingRows returns rows queued for sending. By this system's
// convention the pending marker is the literal "SENT"; rows move to
// "ALREADY_SENT" once processed.
func (s *Service) GetPendingRows(ctx context.Context, sheetID string) ([]Row, error) {
	rows, err := s.GetRows(ctx, sheetID, fullRange)
	if err != nil {
		return nil, err
	}

	pending := make([]Row, 0)
	for _, row := range rows {
		if row["sendstatus"] != "" && strings.EqualFold(row["sendstatus"], "SENT") {
			pending = append(pending, row)
		}
	}
	logger.Info("pending rows found", "sheet_id", sheetID, "count", len(pending))
	return pending, nil
}

// MarkRowProcessed writes "ALREADY_SENT" into the send-status cell of the
// given zero-based data row. The column is located by header heuristic; if
// none matches the write is skipped with an error log, not a failure.
func (s *Service) MarkRowProcessed(ctx context.Context, sheetID string, rowIndex int) error {
	values, err := s.api.Get(ctx, sheetID, "A1:Z1")
	if err != nil {
		return fmt.Errorf("get headers: %w", err)
	}
	var headers []interface{}
	if len(values) > 0 {
		headers = values[0]
	}

	statusIdx := -1
	for i, h := range headers {
		lh := strings.ToLower(cellString(h))
		if strings.Contains(lh, "sendstatus") || strings.Contains(lh, "status") {
			statusIdx = i
			break
		}
	}
	if statusIdx == -1 {
		logger.Error("send-status column not found", "sheet_id", sheetID)
		return nil
	}

	// +2: one for the header row, one for 1-based cell addressing
	cell := fmt.Sprintf("%c%d", rune('A'+statusIdx), rowIndex+2)
	if err := s.api.Update(ctx, sheetID, cell, [][]interface{}{{"ALREADY_SENT"}}); err != nil {
		return fmt.Errorf("update send status: %w", err)
	}
	logger.Info("row marked processed", "sheet_id", sheetID, "cell", cell)
	return nil
}

// UpsertTrackingFields locates the row whose tracking-id cell equals
// trackingID and rewrites it with the fields set in u. Missing join-key
// column or row is a silent no-op apart from logging.
func (s *Service) UpsertTrackingFields(ctx context.Context, sheetID, trackingID string, u TrackingUpdate) error {
	values, err := s.api.Get(ctx, sheetID, fullRange)
	if err != nil {
		return fmt.Errorf("get sheet data: %w", err)
	}
	if len(values) == 0 {
		return nil
	}

	headers := values[0]
	trackingIdx := -1
	for i, h := range headers {
		lh := strings.ToLower(cellString(h))
		if strings.Contains(lh, "tracking") || strings.Contains(lh, "id") {
			trackingIdx = i
			break
		}
	}
	if trackingIdx == -1 {
		logger.Error("tracking id column not found", "sheet_id", sheetID)
		return nil
	}

	target := -1
	for i := 1; i < len(values); i++ {
		if trackingIdx < len(values[i]) && cellString(values[i][trackingIdx]) == trackingID {
			target = i
			break
		}
	}
	if target == -1 {
		logger.Error("row with tracking id not found", "sheet_id", sheetID, "tracking_id", trackingID)
		return nil
	}

	row := make([]interface{}, len(headers))
	for i := range row {
		if i < len(values[target]) {
			row[i] = values[target][i]
		} else {
			row[i] = ""
		}
	}

	for i, h := range headers {
		lh := strings.ToLower(cellString(h))
		switch {
		case strings.Contains(lh, "status") && u.Status != "":
			row[i] = u.Status
		case strings.Contains(lh, "sentat") && u.SentAt != nil:
			row[i] = s.FormatTimestamp(*u.SentAt)
		case strings.Contains(lh, "firstopen") && u.FirstOpenAt != nil:
			row[i] = s.FormatTimestamp(*u.FirstOpenAt)
		case strings.Contains(lh, "lastopen") && u.LastOpenAt != nil:
			row[i] = s.FormatTimestamp(*u.LastOpenAt)
		case strings.Contains(lh, "opencount") && u.OpenCount != nil:
			row[i] = strconv.Itoa(*u.OpenCount)
		}
	}

	writeRange := fmt.Sprintf("A%d:Z%d", target+1, target+1)
	if err := s.api.Update(ctx, sheetID, writeRange, [][]interface{}{row}); err != nil {
		return fmt.Errorf("update tracking info: %w", err)
	}
	logger.Info("tracking fields mirrored", "sheet_id", sheetID, "tracking_id", trackingID)
	return nil
}

// AppendTrackingEntry appends one new row, mapping each existing header to a
// field of the record by the same substring heuristics used everywhere else.
// Headers nothing maps to default to the empty string.
func (s *Service) AppendTrackingEntry(ctx context.Context, sheetID string, e TrackingEntry) error {
	values, err := s.api.Get(ctx, sheetID, "A1:Z1")
	if err != nil {
		return fmt.Errorf("get headers: %w", err)
	}
	var headers []interface{}
	if len(values) > 0 {
		headers = values[0]
	}

	row := make([]interface{}, len(headers))
	for i, h := range headers {
		lh := strings.ToLower(cellString(h))
		switch {
		case strings.Contains(lh, "company"):
			row[i] = e.CompanyName
		case strings.Contains(lh, "position"):
			row[i] = e.Position
		case strings.Contains(lh, "email"):
			row[i] = e.Recipient
		case strings.Contains(lh, "role"):
			row[i] = e.Role
		case strings.Contains(lh, "status"):
			row[i] = e.Status
		case strings.Contains(lh, "sentat"):
			row[i] = s.FormatTimestamp(e.SentAt)
		case strings.Contains(lh, "firstopen"):
			if e.FirstOpenAt != nil {
				row[i] = s.FormatTimestamp(*e.FirstOpenAt)
			} else {
				row[i] = ""
			}
		case strings.Contains(lh, "lastopen"):
			if e.LastOpenAt != nil {
				row[i] = s.FormatTimestamp(*e.LastOpenAt)
			} else {
				row[i] = ""
			}
		case strings.Contains(lh, "opencount"):
			row[i] = strconv.Itoa(e.OpenCount)
		case strings.Contains(lh, "tracking") || strings.Contains(lh, "id"):
			row[i] = e.TrackingID
		default:
			row[i] = ""
		}
	}

	if err := s.api.Append(ctx, sheetID, fullRange, [][]interface{}{row}); err != nil {
		return fmt.Errorf("append tracking entry: %w", err)
	}
	logger.Info("tracking entry appended", "sheet_id", sheetID, "tracking_id", e.TrackingID)
	return nil
}

// googleValues adapts the sheets/v4 client to valuesAPI.
type googleValues struct {
	svc *sheetsapi.Service
}

func (g *googleValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *googleValues) Update(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, writeRange, &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (g *googleValues) Append(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Append(spreadsheetID, writeRange, &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}
