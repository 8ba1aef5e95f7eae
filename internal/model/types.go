// Package model holds the persistent and transient record types shared
// across the store, catalog, detector, scheduler and notification layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the shared verdict/last-status enum.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusAvailable    Status = "available"
	StatusUnavailable  Status = "unavailable"
	StatusInconclusive Status = "inconclusive"
	StatusError        Status = "error"
)

// ErrorKind classifies a fetch/check failure for logging and retry policy.
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindDNS         ErrorKind = "dns"
	ErrorKindConnect     ErrorKind = "connect"
	ErrorKindTLS         ErrorKind = "tls"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindBlocked     ErrorKind = "blocked"
	ErrorKindServerError ErrorKind = "server_error"
	ErrorKindDecode      ErrorKind = "decode"
)

// Transient reports whether the error kind should be retried by the
// scheduler's backoff policy (§4.6).
func (k ErrorKind) Transient() bool {
	switch k {
	case ErrorKindDNS, ErrorKindConnect, ErrorKindTimeout, ErrorKindServerError:
		return true
	default:
		return false
	}
}

// NotificationKind is the ledger/pending-event kind.
type NotificationKind string

const (
	KindRestock      NotificationKind = "restock"
	KindOutage       NotificationKind = "outage"
	KindAdminSummary NotificationKind = "admin_summary"
	KindAdminHealth  NotificationKind = "admin_health"
	KindSkippedStale NotificationKind = "skipped_stale"
)

// Item is a monitored product page.
type Item struct {
	ItemID                uuid.UUID
	OwnerID               string
	IsGlobal              bool
	Name                  string
	URL                   string
	VendorTag             string
	ConfigText            string
	Enabled               bool
	CreatedAt             time.Time
	LastCheckedAt         time.Time
	LastStatus            Status
	LastConfidence        float64
	ConsecutiveErrorCount int
	FingerprintHash       string
	APIProbeEndpoint      string
}

// SystemOwner is the sentinel owner_id meaning "global item, visible to all users".
const SystemOwner = "system"

// DetectorResult is the outcome of one detector's Run.
type DetectorResult struct {
	Name       string  `json:"name"`
	Verdict    Status  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// CheckRecord is one append-only poll result.
type CheckRecord struct {
	CheckID            uuid.UUID
	ItemID              uuid.UUID
	CheckTime           time.Time
	Verdict             Status
	Confidence          float64
	PerDetectorResults  map[string]DetectorResult
	HTTPStatus          int
	LatencyMS           int64
	ErrorKind           ErrorKind
	ErrorMessage        string
	FingerprintHash     string
}

// QuietHours is a recipient-defined window during which deliveries defer.
// StartHour/EndHour are in [0,24); if StartHour > EndHour the window
// crosses midnight.
type QuietHours struct {
	StartHour int
	EndHour   int
}

// Contains reports whether hour (0-23, recipient-local) falls inside the window.
func (q QuietHours) Contains(hour int) bool {
	if q.StartHour == q.EndHour {
		return false
	}
	if q.StartHour < q.EndHour {
		return hour >= q.StartHour && hour < q.EndHour
	}
	// Crosses midnight.
	return hour >= q.StartHour || hour < q.EndHour
}

// User is a bot-front-end-provided recipient/owner identity.
type User struct {
	UserID               string
	IsAdmin              bool
	IsBanned             bool
	DailyAddedCount      int
	DailyWindowStart     time.Time
	CooldownSeconds      int
	DailyNotifyLimit     int
	QuietHours           QuietHours
	NotificationsEnabled bool
}

// NotificationLedgerEntry is one append-only delivery record.
type NotificationLedgerEntry struct {
	ItemID      uuid.UUID
	RecipientID string
	SentAt      time.Time
	Kind        NotificationKind
}

// PendingEvent is a transient transition awaiting aggregation/delivery.
// Never persisted across restarts (§3).
type PendingEvent struct {
	ItemID     uuid.UUID
	DetectedAt time.Time
	FromStatus Status
	ToStatus   Status
	Confidence float64
	Kind       NotificationKind
}
