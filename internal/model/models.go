package model

import (
	"time"
)

// AuctionItem is the canonical listing every source normalizes into.
//
// ItemID is the source-native identifier prefixed with the source tag
// (e.g. "hibid_123456"), assigned once at normalization and stable across
// re-scrapes. Re-ingesting the same listing updates the mutable columns and
// LastSeen but never FirstSeen or ItemID.
type AuctionItem struct {
	ItemID    string        `gorm:"primaryKey;type:varchar(191)" json:"item_id"`
	Source    AuctionSource `gorm:"type:varchar(32);not null;index" json:"source"`
	SourceURL string        `gorm:"type:varchar(512)" json:"source_url"`

	Title       string       `gorm:"type:varchar(512)" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	Category    ItemCategory `gorm:"type:varchar(32);index" json:"category"`
	Subtype     ItemSubtype  `gorm:"type:varchar(32)" json:"subtype"`

	// Prices are pointers: nil means unknown, not zero.
	CurrentPrice  *float64 `json:"current_price"`
	StartingPrice *float64 `json:"starting_price"`
	BuyNowPrice   *float64 `json:"buy_now_price"`

	ClosingAt *time.Time `gorm:"index" json:"closing_at"`

	PickupCity  string   `gorm:"type:varchar(128)" json:"pickup_city"`
	PickupState string   `gorm:"type:varchar(8)" json:"pickup_state"`
	PickupLat   *float64 `json:"pickup_lat"`
	PickupLng   *float64 `json:"pickup_lng"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// RawRef links to the captured payload the item was parsed from.
	RawRef string `gorm:"type:varchar(64)" json:"raw_ref"`
}

// HasCoordinates reports whether the pickup location carries usable
// coordinates. Missing coordinates must never be treated as zero distance.
func (it *AuctionItem) HasCoordinates() bool {
	return it.PickupLat != nil && it.PickupLng != nil
}

// Closed reports whether the auction has ended as of now.
func (it *AuctionItem) Closed(now time.Time) bool {
	return it.ClosingAt != nil && it.ClosingAt.Before(now)
}

// UserIntent is a standing search preference owned by a user.
type UserIntent struct {
	IntentID  string `gorm:"primaryKey;type:varchar(64)" json:"intent_id"`
	UserID    string `gorm:"type:varchar(64);index" json:"user_id"`
	UserEmail string `gorm:"type:varchar(256)" json:"user_email"`

	Category ItemCategory `gorm:"type:varchar(32)" json:"category"`
	// Subtype is SubtypeAny when the intent has no subtype requirement.
	Subtype  ItemSubtype `gorm:"type:varchar(32)" json:"subtype"`
	Keywords []string    `gorm:"serializer:json;type:text" json:"keywords"`

	MaxPrice         float64 `json:"max_price"`
	MaxDistanceMiles float64 `json:"max_distance_miles"`
	ReferenceLat     float64 `json:"reference_lat"`
	ReferenceLng     float64 `json:"reference_lng"`

	MinHoursBeforeClose int `json:"min_hours_before_close"`
	MaxHoursBeforeClose int `json:"max_hours_before_close"`

	ConfidenceThreshold float64 `json:"confidence_threshold"`
	IsActive            bool    `gorm:"index" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Alert is one notification for a specific (item, intent) pair. The pair is
// the natural key: a unique index enforces at most one alert per pair, and
// the coordinator checks existence before creating. The score snapshot is
// immutable after creation; only lifecycle columns change.
type Alert struct {
	AlertID  string `gorm:"primaryKey;type:varchar(64)" json:"alert_id"`
	ItemID   string `gorm:"type:varchar(191);not null;uniqueIndex:idx_alerts_pair" json:"item_id"`
	IntentID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_alerts_pair" json:"intent_id"`
	UserID   string `gorm:"type:varchar(64)" json:"user_id"`

	ConfidenceScore float64  `json:"confidence_score"`
	MatchReasons    []string `gorm:"serializer:json;type:text" json:"match_reasons"`

	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	SentAt    *time.Time `json:"sent_at"`
	ClickedAt *time.Time `json:"clicked_at"`

	Outcome          AlertOutcome `gorm:"type:varchar(16);index" json:"outcome"`
	OutcomeUpdatedAt *time.Time   `json:"outcome_updated_at"`

	// TrackingToken correlates an inbound click without exposing AlertID.
	TrackingToken string `gorm:"type:varchar(64);uniqueIndex" json:"tracking_token"`
}

// LearningParameter is one tunable scalar with hard bounds and one step of
// undo history. min_value ≤ current_value ≤ max_value holds at all times.
type LearningParameter struct {
	ParamName     string   `gorm:"primaryKey;type:varchar(64)" json:"param_name"`
	CurrentValue  float64  `json:"current_value"`
	PreviousValue *float64 `json:"previous_value"`

	MinValue float64 `json:"min_value"`
	MaxValue float64 `json:"max_value"`
	StepSize float64 `json:"step_size"`

	ChangeReason string     `gorm:"type:varchar(256)" json:"change_reason"`
	ChangedAt    *time.Time `json:"changed_at"`
}

// Clamp bounds v to [MinValue, MaxValue].
func (p *LearningParameter) Clamp(v float64) float64 {
	if v < p.MinValue {
		return p.MinValue
	}
	if v > p.MaxValue {
		return p.MaxValue
	}
	return v
}

// ParameterChange is one immutable entry in the parameter audit log.
// Rows are append-only and never mutated after being written.
type ParameterChange struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ParamName string    `gorm:"type:varchar(64);index" json:"param_name"`
	OldValue  float64   `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	Reason    string    `gorm:"type:varchar(256)" json:"reason"`
	ChangedAt time.Time `json:"changed_at"`
}

// RawPayload is a captured scrape response kept for audit.
type RawPayload struct {
	ID          string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Source      AuctionSource `gorm:"type:varchar(32);index" json:"source"`
	URL         string        `gorm:"type:varchar(512)" json:"url"`
	Content     string        `gorm:"type:mediumtext" json:"content"`
	ContentType string        `gorm:"type:varchar(16)" json:"content_type"`
	ScrapedAt   time.Time     `json:"scraped_at"`
}
