// Package store implements MySQL persistence for items, intents, alerts
// and learning parameters.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jprome/auct-alert/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store wraps a gorm DB handle with the persistence operations the
// pipeline, tracker and API need.
type Store struct {
	db *gorm.DB
}

// Open connects to MySQL and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&model.AuctionItem{},
		&model.UserIntent{},
		&model.Alert{},
		&model.LearningParameter{},
		&model.ParameterChange{},
		&model.RawPayload{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ---- items ----

// UpsertItem inserts the item or, when the item_id already exists, updates
// the mutable columns and last_seen. first_seen is set only on insert.
func (s *Store) UpsertItem(ctx context.Context, item *model.AuctionItem) error {
	if item.ItemID == "" {
		return fmt.Errorf("upsert item: empty item_id")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_url", "title", "description", "category", "subtype",
			"current_price", "starting_price", "buy_now_price", "closing_at",
			"pickup_city", "pickup_state", "pickup_lat", "pickup_lng",
			"last_seen", "raw_ref",
		}),
	}).Create(item).Error
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ItemID, err)
	}
	return nil
}

// GetItem loads one item by ID.
func (s *Store) GetItem(ctx context.Context, itemID string) (*model.AuctionItem, error) {
	var item model.AuctionItem
	err := s.db.WithContext(ctx).First(&item, "item_id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return &item, nil
}

// ListOpenItems returns items that have not closed as of now (unknown
// closing times included).
func (s *Store) ListOpenItems(ctx context.Context, now time.Time) ([]model.AuctionItem, error) {
	var items []model.AuctionItem
	err := s.db.WithContext(ctx).
		Where("closing_at IS NULL OR closing_at > ?", now).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list open items: %w", err)
	}
	return items, nil
}

// ---- intents ----

// CreateIntent stores a new intent.
func (s *Store) CreateIntent(ctx context.Context, intent *model.UserIntent) error {
	if err := s.db.WithContext(ctx).Create(intent).Error; err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	return nil
}

// UpdateIntent saves all columns of an existing intent.
func (s *Store) UpdateIntent(ctx context.Context, intent *model.UserIntent) error {
	if err := s.db.WithContext(ctx).Save(intent).Error; err != nil {
		return fmt.Errorf("update intent %s: %w", intent.IntentID, err)
	}
	return nil
}

// GetIntent loads one intent by ID.
func (s *Store) GetIntent(ctx context.Context, intentID string) (*model.UserIntent, error) {
	var intent model.UserIntent
	err := s.db.WithContext(ctx).First(&intent, "intent_id = ?", intentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent %s: %w", intentID, err)
	}
	return &intent, nil
}

// ListActiveIntents returns every intent eligible for matching.
func (s *Store) ListActiveIntents(ctx context.Context) ([]model.UserIntent, error) {
	var intents []model.UserIntent
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&intents).Error
	if err != nil {
		return nil, fmt.Errorf("list active intents: %w", err)
	}
	return intents, nil
}

// ---- alerts ----

// AlertExists reports whether an alert already covers the (item, intent)
// pair. Used as the pre-insert guard; the unique index backs it up under
// races.
func (s *Store) AlertExists(ctx context.Context, itemID, intentID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Alert{}).
		Where("item_id = ? AND intent_id = ?", itemID, intentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("alert exists check: %w", err)
	}
	return count > 0, nil
}

// CreateAlert inserts a new alert row.
func (s *Store) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// GetAlert loads one alert by ID.
func (s *Store) GetAlert(ctx context.Context, alertID string) (*model.Alert, error) {
	var alert model.Alert
	err := s.db.WithContext(ctx).First(&alert, "alert_id = ?", alertID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", alertID, err)
	}
	return &alert, nil
}

// GetAlertByToken loads one alert by tracking token.
func (s *Store) GetAlertByToken(ctx context.Context, token string) (*model.Alert, error) {
	var alert model.Alert
	err := s.db.WithContext(ctx).First(&alert, "tracking_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert by token: %w", err)
	}
	return &alert, nil
}

// MarkAlertSent records the delivery time.
func (s *Store) MarkAlertSent(ctx context.Context, alertID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Alert{}).
		Where("alert_id = ?", alertID).
		Update("sent_at", at).Error
	if err != nil {
		return fmt.Errorf("mark alert sent %s: %w", alertID, err)
	}
	return nil
}

// UpdateAlertOutcome writes the outcome columns of one alert.
func (s *Store) UpdateAlertOutcome(ctx context.Context, alert *model.Alert) error {
	err := s.db.WithContext(ctx).Model(&model.Alert{}).
		Where("alert_id = ?", alert.AlertID).
		Updates(map[string]interface{}{
			"clicked_at":         alert.ClickedAt,
			"outcome":            alert.Outcome,
			"outcome_updated_at": alert.OutcomeUpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("update alert outcome %s: %w", alert.AlertID, err)
	}
	return nil
}

// ListUnresolvedAlerts returns alerts still in a non-terminal outcome.
func (s *Store) ListUnresolvedAlerts(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	err := s.db.WithContext(ctx).
		Where("outcome IN ?", []model.AlertOutcome{model.OutcomePending, model.OutcomeClicked}).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("list unresolved alerts: %w", err)
	}
	return alerts, nil
}

// ListAlertsSince returns alerts created at or after the cutoff.
func (s *Store) ListAlertsSince(ctx context.Context, since time.Time) ([]model.Alert, error) {
	var alerts []model.Alert
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("list alerts since %s: %w", since, err)
	}
	return alerts, nil
}

// ---- learning parameters ----

// GetParameter loads one tunable parameter.
func (s *Store) GetParameter(ctx context.Context, name string) (*model.LearningParameter, error) {
	var p model.LearningParameter
	err := s.db.WithContext(ctx).First(&p, "param_name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get parameter %s: %w", name, err)
	}
	return &p, nil
}

// ListParameters returns every registered parameter.
func (s *Store) ListParameters(ctx context.Context) ([]model.LearningParameter, error) {
	var params []model.LearningParameter
	if err := s.db.WithContext(ctx).Find(&params).Error; err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	return params, nil
}

// SeedParameter inserts a parameter only if it does not exist yet, so
// seeding is idempotent and never resets a tuned value.
func (s *Store) SeedParameter(ctx context.Context, p *model.LearningParameter) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "param_name"}},
		DoNothing: true,
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("seed parameter %s: %w", p.ParamName, err)
	}
	return nil
}

// SaveParameter writes all columns of an existing parameter.
func (s *Store) SaveParameter(ctx context.Context, p *model.LearningParameter) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("save parameter %s: %w", p.ParamName, err)
	}
	return nil
}

// AppendParameterChange adds one entry to the append-only audit log.
func (s *Store) AppendParameterChange(ctx context.Context, c *model.ParameterChange) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("append parameter change: %w", err)
	}
	return nil
}

// ListParameterChanges returns the audit log for one parameter, newest
// first.
func (s *Store) ListParameterChanges(ctx context.Context, name string, limit int) ([]model.ParameterChange, error) {
	if limit <= 0 {
		limit = 50
	}
	var changes []model.ParameterChange
	err := s.db.WithContext(ctx).
		Where("param_name = ?", name).
		Order("changed_at DESC, id DESC").
		Limit(limit).
		Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("list parameter changes %s: %w", name, err)
	}
	return changes, nil
}

// ---- raw payloads ----

// StoreRawPayload captures one fetched page for audit.
func (s *Store) StoreRawPayload(ctx context.Context, p *model.RawPayload) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("store raw payload: %w", err)
	}
	return nil
}
