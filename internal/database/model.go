package database

import (
	"github.com/aberdasher/draftbot/internal/draft"
	"github.com/aberdasher/draftbot/internal/util/timeutil"
)

type Session struct {
	draft.Session `gorm:"embedded"`
}

// DraftLog is the raw draft log fetched from the external drafting service
// once it becomes available.
type DraftLog struct {
	SessionID string `gorm:"primaryKey"`
	DraftID   string `gorm:"index"`
	Data      []byte
	FetchedAt timeutil.UTCTime
}

var models = []any{
	&Session{},
	&DraftLog{},
}
