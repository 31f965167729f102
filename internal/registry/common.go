package registry

import (
	"context"
	"time"

	"github.com/aberdasher/draftbot/internal/draft"
)

type DB interface {
	ListSessions(ctx context.Context) ([]*draft.Session, error)
	SaveSession(ctx context.Context, s *draft.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Provisioner creates and deletes the chat rooms backing a session. Failures
// are treated as logged and non-fatal by the registry; deleting a room that
// is already gone must succeed.
type Provisioner interface {
	CreateChannel(ctx context.Context, name string, participants []string) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

type Options struct {
	// MaxSessions caps the registry; inserting beyond it evicts the oldest
	// session.
	MaxSessions int `toml:"max-sessions"`
	// SessionTTL is how long a session lives after creation.
	SessionTTL time.Duration `toml:"session-ttl"`
	// ServiceURL is the base URL of the external drafting service, used for
	// the join links handed to participants.
	ServiceURL    string        `toml:"service-url"`
	SaveInterval  time.Duration `toml:"save-interval"`
	SweepInterval time.Duration `toml:"sweep-interval"`
	DBSaveTimeout time.Duration `toml:"db-save-timeout"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.MaxSessions == 0 {
		o.MaxSessions = 20
	}
	if o.SessionTTL == 0 {
		o.SessionTTL = 5 * time.Hour
	}
	if o.ServiceURL == "" {
		o.ServiceURL = "https://draftmancer.com"
	}
	if o.SaveInterval == 0 {
		o.SaveInterval = 200 * time.Second
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = time.Hour
	}
	if o.DBSaveTimeout == 0 {
		o.DBSaveTimeout = 10 * time.Second
	}
}
