package draftapi

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aberdasher/draftbot/internal/bridge"
	"github.com/aberdasher/draftbot/internal/draft"
	"github.com/aberdasher/draftbot/internal/draftlog"
	"github.com/aberdasher/draftbot/internal/registry"
	"github.com/aberdasher/draftbot/internal/util/slogx"
)

type ServiceOptions struct {
	Bridge   bridge.Options   `toml:"bridge"`
	DraftLog draftlog.Options `toml:"draft-log"`
}

func (o ServiceOptions) Clone() ServiceOptions {
	return ServiceOptions{
		Bridge:   o.Bridge.Clone(),
		DraftLog: o.DraftLog.Clone(),
	}
}

func (o *ServiceOptions) FillDefaults() {
	o.Bridge.FillDefaults()
	o.DraftLog.FillDefaults()
}

// Service glues the session registry to the external drafting service. Each
// created session gets a keep-alive bridge in the background, and each
// launched draft gets a log collector. Neither is restarted on failure; the
// session stays usable without them.
type Service struct {
	o     ServiceOptions
	log   *slog.Logger
	reg   *registry.Registry
	logDB draftlog.DB

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(ctx context.Context, log *slog.Logger, o ServiceOptions, reg *registry.Registry, logDB draftlog.DB) *Service {
	o = o.Clone()
	o.FillDefaults()
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		o:      o,
		log:    log,
		reg:    reg,
		logDB:  logDB,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops all background bridges and collectors and waits for them.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) startBridge(sess *draft.Session) {
	b := bridge.New(s.log, s.o.Bridge, bridge.Config{
		SessionID: sess.ID,
		DraftID:   sess.DraftID,
		CubeID:    sess.CubeID,
	})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := b.Run(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Warn("session bridge failed",
				slog.String("session_id", sess.ID), slogx.Err(err))
		}
	}()
}

func (s *Service) startCollector(sess *draft.Session) {
	c := draftlog.NewCollector(s.log, s.o.DraftLog, s.logDB, sess.ID, sess.DraftID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := c.Run(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Warn("draft log collector failed",
				slog.String("session_id", sess.ID), slogx.Err(err))
		}
	}()
}

// update applies fn inside the session's execution lane and returns a clone
// of the session as fn left it.
func (s *Service) update(sessionID string, fn func(sess *draft.Session) error) (*draft.Session, error) {
	var snap *draft.Session
	err := s.reg.Update(sessionID, func(sess *draft.Session) error {
		if err := fn(sess); err != nil {
			return err
		}
		snap = sess.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) Create(ctx context.Context, log *slog.Logger, req *CreateRequest) (*CreateResponse, error) {
	sess, err := s.reg.Create(ctx, req.Type, req.CubeID)
	if err != nil {
		return nil, err
	}
	s.startBridge(sess)
	return &CreateResponse{Session: sess}, nil
}

func (s *Service) SignUp(ctx context.Context, log *slog.Logger, req *SignUpRequest) (*SignUpResponse, error) {
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		return sess.SignUp(req.Player, req.Name)
	})
	if err != nil {
		return nil, err
	}
	return &SignUpResponse{Session: sess}, nil
}

func (s *Service) CancelSignUp(ctx context.Context, log *slog.Logger, req *CancelSignUpRequest) (*CancelSignUpResponse, error) {
	emptied := false
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		if err := sess.CancelSignUp(req.Player); err != nil {
			return err
		}
		// The last cancel ends the session; nobody is left to run it.
		if sess.Empty() {
			if err := sess.Cancel(); err != nil {
				return err
			}
			emptied = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if emptied {
		if err := s.reg.Remove(ctx, req.SessionID); err != nil {
			log.Warn("cannot remove emptied session", slogx.Err(err))
		}
	}
	return &CancelSignUpResponse{Session: sess}, nil
}

func (s *Service) ReadyCheck(ctx context.Context, log *slog.Logger, req *ReadyCheckRequest) (*ReadyCheckResponse, error) {
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		return sess.InitiateReadyCheck()
	})
	if err != nil {
		return nil, err
	}
	return &ReadyCheckResponse{Session: sess}, nil
}

func (s *Service) Ready(ctx context.Context, log *slog.Logger, req *ReadyRequest) (*ReadyResponse, error) {
	allReady := false
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		var err error
		if req.Ready {
			err = sess.MarkReady(req.Player)
		} else {
			err = sess.MarkNotReady(req.Player)
		}
		if err != nil {
			return err
		}
		allReady = sess.AllReady()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ReadyResponse{Session: sess, AllReady: allReady}, nil
}

func (s *Service) AssignTeam(ctx context.Context, log *slog.Logger, req *AssignTeamRequest) (*AssignTeamResponse, error) {
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		return sess.AssignTeam(req.Player, req.Name, req.Team)
	})
	if err != nil {
		return nil, err
	}
	return &AssignTeamResponse{Session: sess}, nil
}

func (s *Service) FormTeams(ctx context.Context, log *slog.Logger, req *FormTeamsRequest) (*FormTeamsResponse, error) {
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		return sess.FormTeams()
	})
	if err != nil {
		return nil, err
	}
	// A re-formed team keeps the channels from the first split.
	if len(sess.ChannelIDs) == 0 {
		if err := s.reg.ProvisionChannels(ctx, req.SessionID); err != nil {
			log.Warn("cannot provision channels", slogx.Err(err))
		}
	}
	return &FormTeamsResponse{Session: sess}, nil
}

func (s *Service) Pairings(ctx context.Context, log *slog.Logger, req *PairingsRequest) (*PairingsResponse, error) {
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		return sess.GeneratePairings()
	})
	if err != nil {
		return nil, err
	}
	s.startCollector(sess)
	return &PairingsResponse{Session: sess}, nil
}

func (s *Service) Report(ctx context.Context, log *slog.Logger, req *ReportRequest) (*ReportResponse, error) {
	var tally draft.Tally
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		if err := sess.ReportResult(req.Match, req.Player1Wins, req.Player2Wins); err != nil {
			return err
		}
		tally = sess.Tally()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ReportResponse{Session: sess, Tally: tally}, nil
}

func (s *Service) Seating(ctx context.Context, log *slog.Logger, req *SeatingRequest) (*SeatingResponse, error) {
	sess, err := s.reg.Snapshot(req.SessionID)
	if err != nil {
		return nil, err
	}
	return &SeatingResponse{Order: sess.SeatingOrder()}, nil
}

func (s *Service) NextMatch(ctx context.Context, log *slog.Logger, req *NextMatchRequest) (*NextMatchResponse, error) {
	sess, err := s.reg.Snapshot(req.SessionID)
	if err != nil {
		return nil, err
	}
	rsp := &NextMatchResponse{}
	if res, ok := sess.UnreportedMatchFor(req.Player); ok {
		rsp.Match = &res
	}
	return rsp, nil
}

func (s *Service) Complete(ctx context.Context, log *slog.Logger, req *CompleteRequest) (*CompleteResponse, error) {
	var tally draft.Tally
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		if err := sess.Complete(req.Force); err != nil {
			return err
		}
		tally = sess.Tally()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CompleteResponse{Session: sess, Tally: tally, Winner: tally.Winner()}, nil
}

func (s *Service) Cancel(ctx context.Context, log *slog.Logger, req *CancelRequest) (*CancelResponse, error) {
	sess, err := s.update(req.SessionID, func(sess *draft.Session) error {
		return sess.Cancel()
	})
	if err != nil {
		return nil, err
	}
	if err := s.reg.Remove(ctx, req.SessionID); err != nil {
		log.Warn("cannot remove canceled session", slogx.Err(err))
	}
	return &CancelResponse{Session: sess}, nil
}

func (s *Service) Get(ctx context.Context, log *slog.Logger, req *GetRequest) (*GetResponse, error) {
	sess, err := s.reg.Snapshot(req.SessionID)
	if err != nil {
		return nil, err
	}
	return &GetResponse{Session: sess}, nil
}

func (s *Service) List(ctx context.Context, log *slog.Logger, req *ListRequest) (*ListResponse, error) {
	return &ListResponse{Sessions: s.reg.List()}, nil
}

var _ Server = (*Service)(nil)
