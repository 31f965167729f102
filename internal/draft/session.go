package draft

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/aberdasher/draftbot/internal/util/clone"
	"github.com/aberdasher/draftbot/internal/util/idgen"
	"github.com/aberdasher/draftbot/internal/util/timeutil"
	petname "github.com/dustinkirkland/golang-petname"
)

const (
	// MaxSignUps bounds the roster of a single session.
	MaxSignUps = 8
	// MinSignUps is the smallest roster that can be split into teams.
	MinSignUps = 2
)

// Session is one tournament instance from sign-up through completion. It is a
// plain mutable aggregate: all invariants are enforced by its methods, and
// the registry serializes access to it, so the methods themselves take no
// locks. Guards fail fast and leave the session unchanged.
type Session struct {
	ID        string           `json:"id" gorm:"primaryKey"`
	DraftID   string           `json:"draft_id"`
	Name      string           `json:"name"`
	Type      SessionType      `json:"type"`
	CubeID    string           `json:"cube_id,omitempty"`
	Stage     Stage            `json:"stage" gorm:"index"`
	DraftLink string           `json:"draft_link"`
	CreatedAt timeutil.UTCTime `json:"created_at"`
	ExpiresAt timeutil.UTCTime `json:"expires_at" gorm:"index"`

	SignUps    map[string]string       `json:"sign_ups" gorm:"serializer:json"`
	TeamA      []string                `json:"team_a" gorm:"serializer:json"`
	TeamB      []string                `json:"team_b" gorm:"serializer:json"`
	Pairings   map[int][]Pairing       `json:"pairings,omitempty" gorm:"serializer:json"`
	Results    map[int]*MatchResult    `json:"results,omitempty" gorm:"serializer:json"`
	Ready      map[string]ReadyState   `json:"ready,omitempty" gorm:"serializer:json"`
	ChannelIDs []string                `json:"channel_ids,omitempty" gorm:"serializer:json"`

	// NextMatch is the next match number to hand out. It only grows, so a
	// re-pairing after a team change never reuses numbers.
	NextMatch int `json:"next_match"`
}

func NewSession(typ SessionType, cubeID string, ttl time.Duration, serviceURL string) (*Session, error) {
	switch typ {
	case TypeRandom, TypePremade, TypeSwiss, TypeWinston:
	default:
		return nil, fmt.Errorf("bad session type")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("non-positive ttl")
	}
	draftID, err := idgen.DraftID()
	if err != nil {
		return nil, fmt.Errorf("generate draft id: %w", err)
	}
	now := timeutil.NowUTC()
	return &Session{
		ID:        idgen.SessionID(),
		DraftID:   draftID,
		Name:      petname.Generate(2, "-"),
		Type:      typ,
		CubeID:    cubeID,
		Stage:     StageSignUp,
		DraftLink: fmt.Sprintf("%v/?session=DB%v", serviceURL, draftID),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		SignUps:   make(map[string]string),
		NextMatch: 1,
	}, nil
}

func (s *Session) Clone() *Session {
	c := *s
	c.SignUps = clone.Map(s.SignUps)
	c.TeamA = slices.Clone(s.TeamA)
	c.TeamB = slices.Clone(s.TeamB)
	c.Ready = clone.Map(s.Ready)
	c.ChannelIDs = slices.Clone(s.ChannelIDs)
	c.Results = clone.DeepMapPtr(s.Results)
	if s.Pairings != nil {
		c.Pairings = make(map[int][]Pairing, len(s.Pairings))
		for r, ps := range s.Pairings {
			c.Pairings[r] = clone.DeepSlice(ps)
		}
	}
	return &c
}

func (s *Session) Expired(now timeutil.UTCTime) bool {
	return s.ExpiresAt.Before(now)
}

func (s *Session) Empty() bool {
	return len(s.SignUps) == 0
}

// SignUp registers a participant. Allowed only during the sign-up stage.
func (s *Session) SignUp(participant, name string) error {
	if s.Stage != StageSignUp {
		return errWrongStage("sign up", s.Stage)
	}
	if len(s.SignUps) >= MaxSignUps {
		return &Error{Code: ErrFull, Message: "the sign-up list is already full"}
	}
	if _, ok := s.SignUps[participant]; ok {
		return &Error{Code: ErrAlreadySignedUp, Message: "already signed up"}
	}
	s.SignUps[participant] = name
	return nil
}

// CancelSignUp removes a participant from the roster and, if a ready check is
// running, drops their vote. Whether an emptied session gets canceled is the
// caller's call.
func (s *Session) CancelSignUp(participant string) error {
	if s.Stage != StageSignUp && s.Stage != StageReadyCheck {
		return errWrongStage("cancel sign-up", s.Stage)
	}
	if _, ok := s.SignUps[participant]; !ok {
		return &Error{Code: ErrNotSignedUp, Message: "not signed up"}
	}
	delete(s.SignUps, participant)
	delete(s.Ready, participant)
	s.TeamA = slices.DeleteFunc(s.TeamA, func(id string) bool { return id == participant })
	s.TeamB = slices.DeleteFunc(s.TeamB, func(id string) bool { return id == participant })
	return nil
}

// InitiateReadyCheck starts a ready check over the current roster, seeding
// every participant with no response. It can run at most once per session.
func (s *Session) InitiateReadyCheck() error {
	if s.Stage == StageReadyCheck {
		return &Error{Code: ErrAlreadyInitiated, Message: "ready check already running"}
	}
	if s.Stage != StageSignUp {
		return errWrongStage("initiate ready check", s.Stage)
	}
	s.Ready = make(map[string]ReadyState, len(s.SignUps))
	for id := range s.SignUps {
		s.Ready[id] = ReadyNoResponse
	}
	s.Stage = StageReadyCheck
	return nil
}

func (s *Session) markReady(participant string, state ReadyState) error {
	if s.Stage != StageReadyCheck {
		return errWrongStage("vote in ready check", s.Stage)
	}
	if _, ok := s.Ready[participant]; !ok {
		return &Error{Code: ErrNotSignedUp, Message: "not part of the ready check"}
	}
	s.Ready[participant] = state
	return nil
}

// MarkReady and MarkNotReady are idempotent: repeating the same vote is a
// no-op.
func (s *Session) MarkReady(participant string) error {
	return s.markReady(participant, ReadyYes)
}

func (s *Session) MarkNotReady(participant string) error {
	return s.markReady(participant, ReadyNo)
}

func (s *Session) AllReady() bool {
	if s.Stage != StageReadyCheck || len(s.Ready) == 0 {
		return false
	}
	for _, state := range s.Ready {
		if state != ReadyYes {
			return false
		}
	}
	return true
}

// TeamOf returns the side the participant currently belongs to.
func (s *Session) TeamOf(participant string) TeamSide {
	if slices.Contains(s.TeamA, participant) {
		return TeamA
	}
	if slices.Contains(s.TeamB, participant) {
		return TeamB
	}
	return TeamNone
}

// AssignTeam moves a participant onto the given side, upserting their
// sign-up. Clicking the side you are already on removes you from it (but
// keeps the sign-up); clicking the other side switches you. Allowed any time
// before pairings exist.
func (s *Session) AssignTeam(participant, name string, side TeamSide) error {
	switch s.Stage {
	case StageSignUp, StageReadyCheck, StageTeamsFormed:
	default:
		return errWrongStage("assign team", s.Stage)
	}
	if side != TeamA && side != TeamB {
		return fmt.Errorf("bad team side")
	}
	cur := s.TeamOf(participant)
	s.TeamA = slices.DeleteFunc(s.TeamA, func(id string) bool { return id == participant })
	s.TeamB = slices.DeleteFunc(s.TeamB, func(id string) bool { return id == participant })
	if cur != side {
		if side == TeamA {
			s.TeamA = append(s.TeamA, participant)
		} else {
			s.TeamB = append(s.TeamB, participant)
		}
	}
	if _, ok := s.SignUps[participant]; !ok {
		s.SignUps[participant] = name
	}
	return nil
}

// FormTeams fixes the team rosters. For random sessions the roster is
// shuffled and split into two halves (team B takes the extra player on odd
// counts); manual types must have been populated via AssignTeam and are only
// validated here. Re-forming is allowed until pairings are generated.
func (s *Session) FormTeams() error {
	switch s.Stage {
	case StageSignUp, StageReadyCheck, StageTeamsFormed:
	default:
		return errWrongStage("form teams", s.Stage)
	}
	if len(s.SignUps) < MinSignUps {
		return &Error{Code: ErrInsufficientPlayers, Message: "not enough sign-ups to form teams"}
	}
	if s.Type.ManualTeams() {
		if len(s.TeamA) != len(s.TeamB) {
			return &Error{Code: ErrUnbalancedTeams, Message: "teams must be of equal size"}
		}
	} else {
		ids := make([]string, 0, len(s.SignUps))
		for id := range s.SignUps {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		mid := len(ids) / 2
		s.TeamA = ids[:mid]
		s.TeamB = ids[mid:]
	}
	// Ready votes only exist while the check is running.
	s.Ready = nil
	s.Stage = StageTeamsFormed
	return nil
}

// GeneratePairings builds the fixed 3-round schedule for the current team
// split and seeds an empty result for every match. Match numbers continue
// from any earlier numbering in the session.
func (s *Session) GeneratePairings() error {
	if s.Stage != StageTeamsFormed {
		return errWrongStage("generate pairings", s.Stage)
	}
	rounds, next, err := GeneratePairings(s.TeamA, s.TeamB, s.NextMatch)
	if err != nil {
		return err
	}
	s.Pairings = rounds
	s.NextMatch = next
	if s.Results == nil {
		s.Results = make(map[int]*MatchResult)
	}
	for _, ps := range rounds {
		for _, p := range ps {
			s.Results[p.Match] = &MatchResult{
				Match:   p.Match,
				Player1: p.Player,
				Player2: p.Opponent,
			}
		}
	}
	s.Stage = StagePairing
	return nil
}

// ReportResult records a match score. The winner is set once one side's wins
// exceed the other's; an equal report clears any previous winner, with 0-0
// meaning "no match played". The first report moves the session into the
// reporting stage.
func (s *Session) ReportResult(match, player1Wins, player2Wins int) error {
	if s.Stage != StagePairing && s.Stage != StageReporting {
		return errWrongStage("report a result", s.Stage)
	}
	if player1Wins < 0 || player2Wins < 0 {
		return &Error{Code: ErrBadResult, Message: "negative win count"}
	}
	res, ok := s.Results[match]
	if !ok {
		return &Error{Code: ErrUnknownMatch, Message: fmt.Sprintf("no match %v in this session", match)}
	}
	res.Player1Wins = player1Wins
	res.Player2Wins = player2Wins
	switch {
	case player1Wins > player2Wins:
		winner := res.Player1
		res.Winner = &winner
	case player2Wins > player1Wins:
		winner := res.Player2
		res.Winner = &winner
	default:
		res.Winner = nil
	}
	s.Stage = StageReporting
	return nil
}

// Complete finishes the session. Unless forced, every match must be resolved
// first. No mutation is accepted afterwards.
func (s *Session) Complete(force bool) error {
	if s.Stage != StagePairing && s.Stage != StageReporting {
		return errWrongStage("complete", s.Stage)
	}
	if !force {
		for _, res := range s.Results {
			if !res.Resolved() {
				return &Error{
					Code:    ErrUnresolvedMatch,
					Message: fmt.Sprintf("match %v has no result yet", res.Match),
				}
			}
		}
	}
	s.Stage = StageCompleted
	return nil
}

// Cancel terminates the session from any non-terminal stage.
func (s *Session) Cancel() error {
	if s.Stage.IsTerminal() {
		return errWrongStage("cancel", s.Stage)
	}
	s.Stage = StageCanceled
	return nil
}

// SeatingOrder interleaves the two teams for the drafting-service host, who
// seats players alternating between the sides.
func (s *Session) SeatingOrder() []string {
	order := make([]string, 0, len(s.TeamA)+len(s.TeamB))
	for i := 0; i < max(len(s.TeamA), len(s.TeamB)); i++ {
		if i < len(s.TeamA) {
			order = append(order, s.TeamA[i])
		}
		if i < len(s.TeamB) {
			order = append(order, s.TeamB[i])
		}
	}
	return order
}

// UnreportedMatchFor finds the participant's lowest-numbered match that still
// has no result recorded.
func (s *Session) UnreportedMatchFor(participant string) (MatchResult, bool) {
	best := -1
	for num, res := range s.Results {
		if res.Resolved() || (res.Player1 != participant && res.Player2 != participant) {
			continue
		}
		if best < 0 || num < best {
			best = num
		}
	}
	if best < 0 {
		return MatchResult{}, false
	}
	return s.Results[best].Clone(), true
}
