package registry

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aberdasher/draftbot/internal/draft"
	"github.com/aberdasher/draftbot/internal/util/slogx"
	"github.com/aberdasher/draftbot/internal/util/timeutil"
)

// sessionExt pairs a session with its execution lane. Every mutation and
// snapshot of the session happens with mu held, so multi-step operations on
// one session never interleave.
type sessionExt struct {
	mu sync.Mutex
	s  *draft.Session
}

// Registry is the single owner of all live draft sessions. It enforces the
// capacity cap with oldest-first eviction, persists the set periodically and
// after structural changes, and sweeps out expired sessions.
type Registry struct {
	db   DB
	prov Provisioner
	o    Options
	log  *slog.Logger

	gctx   context.Context
	cancel func()
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*sessionExt
}

func New(ctx context.Context, log *slog.Logger, db DB, prov Provisioner, o Options) (*Registry, error) {
	o = o.Clone()
	o.FillDefaults()
	stored, err := db.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	gctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		db:       db,
		prov:     prov,
		o:        o,
		log:      log,
		gctx:     gctx,
		cancel:   cancel,
		sessions: make(map[string]*sessionExt, len(stored)),
	}
	now := timeutil.NowUTC()
	for _, s := range stored {
		if s.Expired(now) || s.Stage.IsTerminal() {
			log.Info("dropping stale session on load",
				slog.String("session_id", s.ID),
				slog.String("stage", s.Stage.String()),
			)
			r.releaseChannels(ctx, log, s)
			if err := db.DeleteSession(ctx, s.ID); err != nil {
				log.Warn("cannot delete stale session", slog.String("session_id", s.ID), slogx.Err(err))
			}
			continue
		}
		r.sessions[s.ID] = &sessionExt{s: s}
	}
	r.wg.Add(2)
	go r.saveLoop()
	go r.sweepLoop()
	return r, nil
}

func (r *Registry) Close() {
	select {
	case <-r.gctx.Done():
	default:
		r.cancel()
		r.wg.Wait()
	}
}

// Create builds a fresh session and inserts it, evicting the oldest session
// first if the registry is full.
func (r *Registry) Create(ctx context.Context, typ draft.SessionType, cubeID string) (*draft.Session, error) {
	s, err := draft.NewSession(typ, cubeID, r.o.SessionTTL, r.o.ServiceURL)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if victim := func() *sessionExt {
		r.mu.Lock()
		defer r.mu.Unlock()
		var victim *sessionExt
		if len(r.sessions) >= r.o.MaxSessions {
			victim = r.sessions[r.oldestUnlocked()]
			delete(r.sessions, victim.s.ID)
		}
		if _, ok := r.sessions[s.ID]; ok {
			panic("id collision")
		}
		r.sessions[s.ID] = &sessionExt{s: s}
		return victim
	}(); victim != nil {
		victim.mu.Lock()
		defer victim.mu.Unlock()
		r.log.Info("evicting oldest session",
			slog.String("session_id", victim.s.ID),
			slog.String("name", victim.s.Name),
		)
		r.destroy(ctx, victim.s)
	}
	r.log.Info("created session",
		slog.String("session_id", s.ID),
		slog.String("draft_id", s.DraftID),
		slog.String("type", typ.String()),
	)
	if err := r.db.SaveSession(ctx, s); err != nil {
		r.log.Warn("cannot save new session", slog.String("session_id", s.ID), slogx.Err(err))
	}
	return s.Clone(), nil
}

// oldestUnlocked picks the session with the earliest creation timestamp,
// falling back to ID order (IDs embed the timestamp) on equal times.
func (r *Registry) oldestUnlocked() string {
	var oldest *draft.Session
	for _, ext := range r.sessions {
		s := ext.s
		if oldest == nil {
			oldest = s
			continue
		}
		if c := s.CreatedAt.Compare(oldest.CreatedAt); c < 0 || (c == 0 && s.ID < oldest.ID) {
			oldest = s
		}
	}
	return oldest.ID
}

func (r *Registry) get(sessionID string) (*sessionExt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.sessions[sessionID]
	if !ok {
		return nil, &draft.Error{Code: draft.ErrNoSuchSession, Message: "no such session"}
	}
	return ext, nil
}

// Update runs fn on the session with its execution lane held. fn sees the
// live aggregate; an error from fn is returned as-is and, per the session
// guard contract, implies no mutation happened.
func (r *Registry) Update(sessionID string, fn func(s *draft.Session) error) error {
	ext, err := r.get(sessionID)
	if err != nil {
		return err
	}
	ext.mu.Lock()
	defer ext.mu.Unlock()
	return fn(ext.s)
}

// Snapshot returns a deep copy of the session for read-only rendering.
func (r *Registry) Snapshot(sessionID string) (*draft.Session, error) {
	ext, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	ext.mu.Lock()
	defer ext.mu.Unlock()
	return ext.s.Clone(), nil
}

// List returns snapshots of all sessions in creation order.
func (r *Registry) List() []*draft.Session {
	exts := func() []*sessionExt {
		r.mu.RLock()
		defer r.mu.RUnlock()
		exts := make([]*sessionExt, 0, len(r.sessions))
		for _, ext := range r.sessions {
			exts = append(exts, ext)
		}
		return exts
	}()
	res := make([]*draft.Session, 0, len(exts))
	for _, ext := range exts {
		ext.mu.Lock()
		res = append(res, ext.s.Clone())
		ext.mu.Unlock()
	}
	slices.SortFunc(res, func(a, b *draft.Session) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return res
}

// Remove deletes the session, releasing its chat rooms and its stored state.
func (r *Registry) Remove(ctx context.Context, sessionID string) error {
	ext, err := r.get(sessionID)
	if err != nil {
		return err
	}
	ext.mu.Lock()
	defer ext.mu.Unlock()
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	r.log.Info("removing session", slog.String("session_id", sessionID))
	r.destroy(ctx, ext.s)
	return nil
}

// ProvisionChannels creates the two team rooms and the shared draft room and
// records their IDs for later cleanup. A failure to create one room does not
// roll back the others; the session keeps whatever was created.
func (r *Registry) ProvisionChannels(ctx context.Context, sessionID string) error {
	ext, err := r.get(sessionID)
	if err != nil {
		return err
	}
	ext.mu.Lock()
	defer ext.mu.Unlock()
	s := ext.s
	all := make([]string, 0, len(s.SignUps))
	for id := range s.SignUps {
		all = append(all, id)
	}
	slices.Sort(all)
	rooms := []struct {
		name    string
		members []string
	}{
		{fmt.Sprintf("team-a-chat-%v", s.DraftID), slices.Clone(s.TeamA)},
		{fmt.Sprintf("team-b-chat-%v", s.DraftID), slices.Clone(s.TeamB)},
		{fmt.Sprintf("draft-chat-%v", s.DraftID), all},
	}
	for _, room := range rooms {
		id, err := r.prov.CreateChannel(ctx, room.name, room.members)
		if err != nil {
			return fmt.Errorf("create channel %q: %w", room.name, err)
		}
		s.ChannelIDs = append(s.ChannelIDs, id)
	}
	return nil
}

// destroy releases the session's external resources and stored state. Callers
// must hold the session's lane. Individual failures are logged and do not
// stop the rest of the cleanup.
func (r *Registry) destroy(ctx context.Context, s *draft.Session) {
	r.releaseChannels(ctx, r.log, s)
	dbCtx, cancel := context.WithTimeout(context.Background(), r.o.DBSaveTimeout)
	defer cancel()
	if err := r.db.DeleteSession(dbCtx, s.ID); err != nil {
		r.log.Warn("cannot delete session from db", slog.String("session_id", s.ID), slogx.Err(err))
	}
}

func (r *Registry) releaseChannels(ctx context.Context, log *slog.Logger, s *draft.Session) {
	for _, id := range s.ChannelIDs {
		if err := r.prov.DeleteChannel(ctx, id); err != nil {
			log.Warn("cannot delete channel",
				slog.String("session_id", s.ID),
				slog.String("channel_id", id),
				slogx.Err(err),
			)
		}
	}
	s.ChannelIDs = nil
}

// SaveAll persists a snapshot of every session. Per-session failures are
// logged and do not abort the rest.
func (r *Registry) SaveAll(ctx context.Context) {
	for _, s := range r.List() {
		if err := r.db.SaveSession(ctx, s); err != nil {
			r.log.Error("cannot save session", slog.String("session_id", s.ID), slogx.Err(err))
		}
	}
}

func (r *Registry) saveLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.o.SaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.o.DBSaveTimeout)
			r.SaveAll(ctx)
			cancel()
		case <-r.gctx.Done():
			return
		}
	}
}

// Sweep removes every session whose expiry has passed. A failure on one
// session is logged and the sweep moves on.
func (r *Registry) Sweep(ctx context.Context, now timeutil.UTCTime) {
	for _, s := range r.List() {
		if !s.Expired(now) {
			continue
		}
		r.log.Info("session expired", slog.String("session_id", s.ID))
		if err := r.Remove(ctx, s.ID); err != nil {
			r.log.Warn("cannot remove expired session", slog.String("session_id", s.ID), slogx.Err(err))
		}
	}
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.o.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(r.gctx, timeutil.NowUTC())
		case <-r.gctx.Done():
			return
		}
	}
}
