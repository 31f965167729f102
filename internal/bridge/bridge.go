package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/aberdasher/draftbot/internal/util/backoff"
	"github.com/aberdasher/draftbot/internal/util/slogx"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateImporting
	StateAwaitingQuorum
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateImporting:
		return "importing"
	case StateAwaitingQuorum:
		return "awaiting_quorum"
	}
	return fmt.Sprintf("state(%v)", int32(s))
}

type Options struct {
	// URL is the websocket endpoint of the drafting service.
	URL string `toml:"url"`

	// UserID and UserName identify the bridge itself inside the draft
	// session. They are not counted towards the quorum.
	UserID   string `toml:"user-id"`
	UserName string `toml:"user-name"`

	// Quorum is the number of users besides the bridge that must be present
	// in the session before the bridge considers its job done.
	Quorum int `toml:"quorum"`

	CubeService string `toml:"cube-service"`

	DialTimeout  time.Duration `toml:"dial-timeout"`
	WriteTimeout time.Duration `toml:"write-timeout"`
	AckTimeout   time.Duration `toml:"ack-timeout"`

	// PollInterval paces the presence queries sent while waiting for quorum.
	PollInterval time.Duration `toml:"poll-interval"`

	Connect backoff.Options `toml:"connect"`
	Import  backoff.Options `toml:"import"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.URL == "" {
		o.URL = "wss://draftmancer.com"
	}
	if o.UserID == "" {
		o.UserID = "DraftBot"
	}
	if o.UserName == "" {
		o.UserName = "DraftBot"
	}
	if o.Quorum == 0 {
		o.Quorum = 2
	}
	if o.CubeService == "" {
		o.CubeService = "Cube Cobra"
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.AckTimeout == 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Second
	}
	o.Connect.FillDefaults()
	o.Import.FillDefaults()
}

// Config names the draft session the bridge must keep alive.
type Config struct {
	SessionID string
	DraftID   string
	CubeID    string
}

// Bridge joins a draft session on the external drafting service, configures
// the cube import and holds the connection open until enough real players
// have joined. A single Bridge serves a single session; Run is one-shot.
type Bridge struct {
	o   Options
	cfg Config
	log *slog.Logger

	wmu  sync.Mutex
	conn *websocket.Conn

	smu   sync.Mutex
	state State
}

func New(log *slog.Logger, o Options, cfg Config) *Bridge {
	o = o.Clone()
	o.FillDefaults()
	return &Bridge{
		o:   o,
		cfg: cfg,
		log: log.With(
			slog.String("session_id", cfg.SessionID),
			slog.String("draft_id", cfg.DraftID),
		),
		state: StateDisconnected,
	}
}

func (b *Bridge) Status() State {
	b.smu.Lock()
	defer b.smu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.smu.Lock()
	b.state = s
	b.smu.Unlock()
	b.log.Debug("bridge state changed", slog.String("state", s.String()))
}

func (b *Bridge) sessionURL() string {
	return fmt.Sprintf("%v/?userID=%v&sessionID=%v&userName=%v",
		b.o.URL,
		url.QueryEscape(b.o.UserID),
		url.QueryEscape("DB"+b.cfg.DraftID),
		url.QueryEscape(b.o.UserName),
	)
}

func (b *Bridge) writeFrame(event string, data any) error {
	f := frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %v: %w", event, err)
		}
		f.Data = raw
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(b.o.WriteTimeout))
	if err := b.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %v: %w", event, err)
	}
	return nil
}

// Run connects to the drafting service, imports the cube and waits until the
// quorum of players is present. It returns nil on quorum, ctx.Err() on
// cancellation, and a non-nil error if the import cannot be configured or the
// connection drops early. The connection is torn down in all cases.
func (b *Bridge) Run(ctx context.Context) error {
	b.setState(StateConnecting)
	conn, err := b.dial(ctx)
	if err != nil {
		b.setState(StateDisconnected)
		return err
	}
	b.conn = conn
	b.setState(StateConnected)
	defer func() {
		b.wmu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(b.o.WriteTimeout))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		b.wmu.Unlock()
		_ = conn.Close()
		b.setState(StateDisconnected)
	}()

	acks := make(chan importCubeAckData, 1)
	presence := make(chan int, 1)
	readErr := make(chan error, 1)
	go b.readLoop(acks, presence, readErr)

	// Reads are owned by readLoop, so cancellation must close the socket to
	// unblock it. The inner context keeps the unblock goroutine from leaking
	// when Run finishes on its own.
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-rctx.Done()
		_ = conn.Close()
	}()

	if err := b.importCube(ctx, acks, readErr); err != nil {
		return err
	}
	return b.awaitQuorum(ctx, presence, readErr)
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	boff, err := backoff.New(b.o.Connect)
	if err != nil {
		return nil, fmt.Errorf("bad connect backoff config: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: b.o.DialTimeout}
	for {
		conn, _, err := dialer.DialContext(ctx, b.sessionURL(), nil)
		if err == nil {
			return conn, nil
		}
		b.log.Warn("connect attempt failed, retrying", slogx.Err(err))
		if rerr := boff.Retry(ctx, err); rerr != nil {
			return nil, fmt.Errorf("connect to drafting service: %w", rerr)
		}
	}
}

func (b *Bridge) readLoop(acks chan<- importCubeAckData, presence chan<- int, readErr chan<- error) {
	for {
		var f frame
		if err := b.conn.ReadJSON(&f); err != nil {
			readErr <- err
			return
		}
		switch f.Event {
		case eventImportCubeAck:
			var ack importCubeAckData
			if len(f.Data) != 0 {
				if err := json.Unmarshal(f.Data, &ack); err != nil {
					b.log.Warn("bad importCubeAck frame", slogx.Err(err))
					continue
				}
			}
			select {
			case acks <- ack:
			default:
			}
		case eventSessionUsers:
			var users []sessionUser
			if err := json.Unmarshal(f.Data, &users); err != nil {
				b.log.Warn("bad sessionUsers frame", slogx.Err(err))
				continue
			}
			cnt := 0
			for _, u := range users {
				if u.UserID != b.o.UserID {
					cnt++
				}
			}
			select {
			case presence <- cnt:
			default:
			}
		default:
			// Sessions emit plenty of events the bridge has no use for.
		}
	}
}

func (b *Bridge) importCube(ctx context.Context, acks <-chan importCubeAckData, readErr <-chan error) error {
	b.setState(StateImporting)
	boff, err := backoff.New(b.o.Import)
	if err != nil {
		return fmt.Errorf("bad import backoff config: %w", err)
	}
	for {
		if err := b.writeFrame(eventImportCube, importCubeData{
			Service:       b.o.CubeService,
			CubeID:        b.cfg.CubeID,
			MatchVersions: true,
		}); err != nil {
			return err
		}
		timer := time.NewTimer(b.o.AckTimeout)
		var attemptErr error
		select {
		case ack := <-acks:
			timer.Stop()
			if ack.Error == "" {
				b.log.Info("cube import configured", slog.String("cube_id", b.cfg.CubeID))
				return nil
			}
			attemptErr = fmt.Errorf("import rejected: %v", ack.Error)
		case <-timer.C:
			attemptErr = fmt.Errorf("import not acknowledged after %v", b.o.AckTimeout)
		case err := <-readErr:
			timer.Stop()
			return fmt.Errorf("connection lost during import: %w", err)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		b.log.Warn("cube import attempt failed, retrying", slogx.Err(attemptErr))
		if err := boff.Retry(ctx, attemptErr); err != nil {
			return fmt.Errorf("configure cube import: %w", err)
		}
	}
}

func (b *Bridge) awaitQuorum(ctx context.Context, presence <-chan int, readErr <-chan error) error {
	b.setState(StateAwaitingQuorum)
	// Polls are triggered both by the ticker and by sub-quorum presence
	// updates; the limiter caps the combined getUsers rate at one query per
	// PollInterval, so a burst of updates cannot flood the session.
	limiter := rate.NewLimiter(rate.Every(b.o.PollInterval), 1)
	ticker := time.NewTicker(b.o.PollInterval)
	defer ticker.Stop()
	poll := func() error {
		if !limiter.Allow() {
			return nil
		}
		return b.writeFrame(eventGetUsers, nil)
	}
	if err := poll(); err != nil {
		return err
	}
	for {
		select {
		case cnt := <-presence:
			if cnt >= b.o.Quorum {
				b.log.Info("player quorum reached", slog.Int("players", cnt))
				return nil
			}
			b.log.Debug("waiting for players", slog.Int("players", cnt), slog.Int("quorum", b.o.Quorum))
			if err := poll(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := poll(); err != nil {
				return err
			}
		case err := <-readErr:
			return fmt.Errorf("connection lost before quorum: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
