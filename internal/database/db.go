package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aberdasher/draftbot/internal/draft"
	"github.com/aberdasher/draftbot/internal/draftlog"
	"github.com/aberdasher/draftbot/internal/registry"
	"github.com/aberdasher/draftbot/internal/util/sliceutil"
	"github.com/aberdasher/draftbot/internal/util/slogx"
	"github.com/aberdasher/draftbot/internal/util/timeutil"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Options struct {
	Path          string        `toml:"path"`
	Debug         bool          `toml:"debug"`
	SlowThreshold time.Duration `toml:"slow-threshold"`
	BusyTimeout   time.Duration `toml:"busy-timeout"`
	UseWAL        bool          `toml:"use-wal"`
}

func (o *Options) FillDefaults() {
	if o.SlowThreshold == 0 {
		o.SlowThreshold = 200 * time.Millisecond
	}
	if o.BusyTimeout == 0 {
		o.BusyTimeout = 1 * time.Minute
	}
}

type DB struct {
	db  *gorm.DB
	log *slog.Logger
}

var (
	_ registry.DB = (*DB)(nil)
	_ draftlog.DB = (*DB)(nil)
)

func buildPath(o Options) string {
	var params []string
	if o.UseWAL {
		params = append(params, "_journal_mode=WAL")
		params = append(params, "_synchronous=NORMAL")
	}
	params = append(params, fmt.Sprintf("_busy_timeout=%v", o.BusyTimeout.Milliseconds()))
	paramStr := strings.Join(params, "&")
	if paramStr == "" {
		return o.Path
	}
	return o.Path + "?" + paramStr
}

func New(log *slog.Logger, o Options) (*DB, error) {
	o.FillDefaults()

	log.Info("opening db")
	db, err := gorm.Open(sqlite.Open(buildPath(o)), &gorm.Config{
		Logger: Logger(log, o),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	d := &DB{db: db, log: log}

	log.Info("migrating db")
	if err := db.AutoMigrate(models...); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	log.Info("db opened")
	return d, nil
}

func (d *DB) Close() {
	db, err := d.db.DB()
	if err != nil {
		d.log.Error("could not get underlying db", slogx.Err(err))
		return
	}
	if err := db.Close(); err != nil {
		d.log.Error("could not close db", slogx.Err(err))
	}
}

func (d *DB) ListSessions(ctx context.Context) ([]*draft.Session, error) {
	var res []Session
	err := d.db.WithContext(ctx).Find(&res).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sliceutil.Map(res, func(s Session) *draft.Session {
		c := s.Session
		return &c
	}), nil
}

// GetSession returns the stored session, or nil if none exists.
func (d *DB) GetSession(ctx context.Context, sessionID string) (*draft.Session, error) {
	var s Session
	err := d.db.WithContext(ctx).Where("id = ?", sessionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s.Session, nil
}

func (d *DB) SaveSession(ctx context.Context, s *draft.Session) error {
	err := d.db.WithContext(ctx).Save(&Session{Session: *s}).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (d *DB) DeleteSession(ctx context.Context, sessionID string) error {
	err := d.db.WithContext(ctx).Delete(&Session{}, "id = ?", sessionID).Error
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (d *DB) SaveDraftLog(ctx context.Context, sessionID, draftID string, data []byte) error {
	err := d.db.WithContext(ctx).Save(&DraftLog{
		SessionID: sessionID,
		DraftID:   draftID,
		Data:      data,
		FetchedAt: timeutil.NowUTC(),
	}).Error
	if err != nil {
		return fmt.Errorf("save draft log: %w", err)
	}
	return nil
}

func (d *DB) GetDraftLog(ctx context.Context, sessionID string) ([]byte, error) {
	var log DraftLog
	err := d.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get draft log: %w", err)
	}
	return log.Data, nil
}
