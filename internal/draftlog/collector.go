package draftlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aberdasher/draftbot/internal/util/slogx"
)

// DB stores fetched draft logs.
type DB interface {
	SaveDraftLog(ctx context.Context, sessionID string, draftID string, data []byte) error
}

type Options struct {
	// BaseURL is the HTTP endpoint of the drafting service.
	BaseURL string `toml:"base-url"`

	PollInterval   time.Duration `toml:"poll-interval"`
	RequestTimeout time.Duration `toml:"request-timeout"`

	// DelayedWait is how long to back off after the service reports the log
	// as delayed, which happens while the draft is still in progress.
	DelayedWait time.Duration `toml:"delayed-wait"`

	// MaxAge bounds how long a collector keeps polling for a log that never
	// materializes before giving up.
	MaxAge time.Duration `toml:"max-age"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://draftmancer.com"
	}
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Minute
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.DelayedWait == 0 {
		o.DelayedWait = 3*time.Hour + 15*time.Minute
	}
	if o.MaxAge == 0 {
		o.MaxAge = 12 * time.Hour
	}
}

// Collector periodically fetches the draft log for one draft session and
// persists it. While the draft is in progress the service reports the log as
// delayed; the collector backs off once for DelayedWait and then saves
// whatever the next fetch returns.
type Collector struct {
	o      Options
	db     DB
	log    *slog.Logger
	client *http.Client

	sessionID string
	draftID   string
}

func NewCollector(log *slog.Logger, o Options, db DB, sessionID, draftID string) *Collector {
	o = o.Clone()
	o.FillDefaults()
	return &Collector{
		o:      o,
		db:     db,
		log:    log.With(slog.String("session_id", sessionID), slog.String("draft_id", draftID)),
		client: &http.Client{Timeout: o.RequestTimeout},

		sessionID: sessionID,
		draftID:   draftID,
	}
}

func (c *Collector) logURL() string {
	return fmt.Sprintf("%v/getDraftLog/DB%v", c.o.BaseURL, c.draftID)
}

// fetch returns the raw log and whether it is still delayed. A nil log with a
// nil error means the log does not exist yet.
func (c *Collector) fetch(ctx context.Context) ([]byte, bool, error) {
	rctx, cancel := context.WithTimeout(ctx, c.o.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(rctx, http.MethodGet, c.logURL(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	rsp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch draft log: %w", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if rsp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("fetch draft log: unexpected status %v", rsp.Status)
	}
	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read draft log: %w", err)
	}
	var probe struct {
		Delayed bool `json:"delayed"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, fmt.Errorf("parse draft log: %w", err)
	}
	return data, probe.Delayed, nil
}

// Run polls until a draft log is stored, the context is canceled, or MaxAge
// elapses. Transient fetch errors are logged and retried on the next tick.
func (c *Collector) Run(ctx context.Context) error {
	deadline := time.Now().Add(c.o.MaxAge)
	delayHandled := false
	for {
		wait := c.o.PollInterval
		data, delayed, err := c.fetch(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("draft log poll failed", slogx.Err(err))
		case data == nil:
			c.log.Debug("draft log not available yet")
		case delayed && !delayHandled:
			delayHandled = true
			wait = c.o.DelayedWait
			c.log.Info("draft log delayed, backing off", slog.Duration("wait", wait))
		default:
			c.log.Info("saving draft log", slog.Int("size", len(data)), slog.Bool("delayed", delayed))
			if err := c.db.SaveDraftLog(ctx, c.sessionID, c.draftID, data); err != nil {
				return fmt.Errorf("save draft log: %w", err)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("draft log did not appear within %v", c.o.MaxAge)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
