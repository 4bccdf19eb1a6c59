package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rfqdesk/core/events"
	"rfqdesk/observability/metrics"
)

const defaultFilePragmas = "mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// ErrDSNRequired is returned when no archive location is configured.
var ErrDSNRequired = errors.New("rfqd archive DSN must be configured")

// Notification is one archived engine event.
type Notification struct {
	ID         uint      `gorm:"primaryKey" json:"seq"`
	EventID    string    `gorm:"size:36;uniqueIndex" json:"event_id"`
	Type       string    `gorm:"size:64;index" json:"type"`
	RequestID  uint64    `gorm:"index" json:"request_id,omitempty"`
	Account    string    `gorm:"size:96;index" json:"account,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Decoded returns the attribute map stored with the notification.
func (n Notification) Decoded() map[string]string {
	out := map[string]string{}
	if n.Attributes != "" {
		_ = json.Unmarshal([]byte(n.Attributes), &out)
	}
	return out
}

// Query filters archive listings. Zero values match everything.
type Query struct {
	Type      string
	Account   string
	RequestID uint64
	AfterSeq  uint
	Limit     int
}

// Archive persists notifications through gorm. It implements events.Emitter.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// ResolveDialector picks the gorm driver for dsn: postgres URLs and key/value
// DSNs go to the postgres driver, anything else is treated as a sqlite file
// path or sqlite DSN.
func ResolveDialector(dsn string) (gorm.Dialector, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case trimmed == "":
		return nil, ErrDSNRequired
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"), strings.Contains(trimmed, "host="):
		return postgres.Open(trimmed), nil
	case strings.HasPrefix(trimmed, "file:"):
		return sqlite.Open(trimmed), nil
	default:
		abs, err := filepath.Abs(trimmed)
		if err != nil {
			return nil, fmt.Errorf("resolve archive path: %w", err)
		}
		return sqlite.Open(fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas)), nil
	}
}

// OpenArchive connects to the archive database and migrates the schema.
func OpenArchive(dsn string, log *slog.Logger) (*Archive, error) {
	dialector, err := ResolveDialector(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&Notification{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Archive{db: db, logger: log, now: time.Now}, nil
}

// Close releases database resources.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Write failures are logged and counted; the
// engine never observes them.
func (a *Archive) Emit(evt events.Event) {
	if a == nil || evt == nil {
		return
	}
	err := a.Record(context.Background(), evt)
	metrics.Stream().ArchiveWrite(err)
	if err != nil {
		a.logger.Error("archive notification", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Record stores evt.
func (a *Archive) Record(ctx context.Context, evt events.Event) error {
	payload := evt.Event()
	if payload == nil {
		return fmt.Errorf("archive: event %s has no payload", evt.EventType())
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return fmt.Errorf("archive: encode attributes: %w", err)
	}
	row := Notification{
		EventID:    uuid.NewString(),
		Type:       payload.Type,
		Account:    payload.Attr("account"),
		Attributes: string(attrs),
		CreatedAt:  a.now().UTC(),
	}
	if raw := payload.Attr("id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			row.RequestID = id
		}
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

// List returns notifications matching q in insertion order.
func (a *Archive) List(ctx context.Context, q Query) ([]Notification, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	tx := a.db.WithContext(ctx).Model(&Notification{}).Order("id asc").Limit(limit)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.Account != "" {
		tx = tx.Where("account = ?", q.Account)
	}
	if q.RequestID != 0 {
		tx = tx.Where("request_id = ?", q.RequestID)
	}
	if q.AfterSeq != 0 {
		tx = tx.Where("id > ?", q.AfterSeq)
	}
	var rows []Notification
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return rows, nil
}
