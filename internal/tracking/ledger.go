// Package tracking keeps the per-email send/open ledger and serves the
// open-tracking beacon. The ledger is process-local and ephemeral; the only
// durable copy of tracking state is whatever gets mirrored to the sheet.
package tracking

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/automail/internal/pkg/logger"
	"github.com/ignite/automail/internal/sheets"
)

// Status values for a tracked email.
const (
	StatusSent   = "sent"
	StatusOpened = "opened"
	StatusFailed = "failed"
)

// Record is the lifecycle of one sent email.
type Record struct {
	TrackingID  string     `json:"trackingId"`
	Recipient   string     `json:"recipient"`
	Role        string     `json:"role"`
	CompanyName string     `json:"companyName"`
	Position    string     `json:"position"`
	SentAt      time.Time  `json:"sentAt"`
	FirstOpenAt *time.Time `json:"firstOpenAt,omitempty"`
	LastOpenAt  *time.Time `json:"lastOpenAt,omitempty"`
	OpenCount   int        `json:"openCount"`
	Status      string     `json:"status"`
}

// Stats summarizes the ledger.
type Stats struct {
	TotalSent   int      `json:"totalSent"`
	TotalOpened int      `json:"totalOpened"`
	OpenRate    float64  `json:"openRate"`
	Records     []Record `json:"trackingEntries"`
}

// Mirror receives best-effort copies of ledger updates. Satisfied by the
// sheets gateway; nil disables mirroring.
type Mirror interface {
	AppendTrackingEntry(ctx context.Context, sheetID string, e sheets.TrackingEntry) error
	UpsertTrackingFields(ctx context.Context, sheetID, trackingID string, u sheets.TrackingUpdate) error
}

// Ledger is the in-memory tracking store. Mutations are mutex-guarded so
// beacon hits racing a bulk send cannot corrupt the map.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*Record

	baseURL string
	mirror  Mirror

	now func() time.Time
}

// NewLedger creates a ledger. baseURL is the public prefix open URLs are
// built from; mirror may be nil.
func NewLedger(baseURL string, mirror Mirror) *Ledger {
	return &Ledger{
		records: map[string]*Record{},
		baseURL: baseURL,
		mirror:  mirror,
		now:     time.Now,
	}
}

// GenerateID returns a fresh tracking id.
func (l *Ledger) GenerateID() string {
	return uuid.NewString()
}

// OpenURL builds the beacon URL for a tracking id.
func (l *Ledger) OpenURL(trackingID string) string {
	return l.baseURL + "/api/track/open/" + trackingID
}

// RecordSent stores a new record with status "sent". When sheetID is given
// the record is also appended to that sheet; a mirror failure is logged and
// swallowed, never propagated.
func (l *Ledger) RecordSent(ctx context.Context, trackingID, recipient, role, companyName, position, sheetID string) {
	rec := &Record{
		TrackingID:  trackingID,
		Recipient:   recipient,
		Role:        role,
		CompanyName: companyName,
		Position:    position,
		SentAt:      l.now(),
		OpenCount:   0,
		Status:      StatusSent,
	}

	l.mu.Lock()
	l.records[trackingID] = rec
	l.mu.Unlock()

	logger.Info("send tracked", "tracking_id", trackingID, "recipient", recipient)

	if sheetID == "" || l.mirror == nil {
		return
	}
	entry := sheets.TrackingEntry{
		TrackingID:  rec.TrackingID,
		Recipient:   rec.Recipient,
		Role:        rec.Role,
		CompanyName: rec.CompanyName,
		Position:    rec.Position,
		SentAt:      rec.SentAt,
		OpenCount:   rec.OpenCount,
		Status:      rec.Status,
	}
	if err := l.mirror.AppendTrackingEntry(ctx, sheetID, entry); err != nil {
		logger.Error("tracking entry mirror failed", "tracking_id", trackingID, "error", err.Error())
	}
}

// RecordOpen applies one open event. Unknown ids are a warned no-op. The
// in-memory update always succeeds regardless of the sheet mirror outcome.
func (l *Ledger) RecordOpen(ctx context.Context, trackingID, sheetID string) {
	now := l.now()

	l.mu.Lock()
	rec, ok := l.records[trackingID]
	if !ok {
		l.mu.Unlock()
		logger.Warn("open for unknown tracking id", "tracking_id", trackingID)
		return
	}

	if rec.FirstOpenAt == nil {
		first := now
		rec.FirstOpenAt = &first
	}
	last := now
	rec.LastOpenAt = &last
	rec.OpenCount++
	rec.Status = StatusOpened

	// copy the mirrored fields so the upsert never reads a record another
	// open is mutating
	first := *rec.FirstOpenAt
	openCount := rec.OpenCount
	update := sheets.TrackingUpdate{
		Status:      rec.Status,
		FirstOpenAt: &first,
		LastOpenAt:  &last,
		OpenCount:   &openCount,
	}
	l.mu.Unlock()

	logger.Info("email opened", "tracking_id", trackingID, "open_count", openCount)

	if sheetID == "" || l.mirror == nil {
		return
	}
	if err := l.mirror.UpsertTrackingFields(ctx, sheetID, trackingID, update); err != nil {
		logger.Error("open mirror failed", "tracking_id", trackingID, "error", err.Error())
	}
}

// Get returns a copy of the record for trackingID.
func (l *Ledger) Get(trackingID string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[trackingID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Stats returns send/open totals and every record, oldest first.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]Record, 0, len(l.records))
	opened := 0
	for _, rec := range l.records {
		if rec.Status == StatusOpened {
			opened++
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].SentAt.Before(records[j].SentAt) })

	total := len(records)
	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(opened)/float64(total)*100*100) / 100
	}
	return Stats{
		TotalSent:   total,
		TotalOpened: opened,
		OpenRate:    rate,
		Records:     records,
	}
}

// Cleanup deletes every record sent before now minus olderThanDays and
// returns how many were removed. Irreversible, in-memory only.
func (l *Ledger) Cleanup(olderThanDays int) int {
	cutoff := l.now().AddDate(0, 0, -olderThanDays)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, rec := range l.records {
		if rec.SentAt.Before(cutoff) {
			delete(l.records, id)
			removed++
		}
	}
	logger.Info("tracking cleanup", "older_than_days", olderThanDays, "removed", removed)
	return removed
}
