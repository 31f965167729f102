package draft

import (
	"github.com/aberdasher/draftbot/internal/util/clone"
)

type SessionType int

const (
	TypeUnknown SessionType = iota
	TypeRandom
	TypePremade
	TypeSwiss
	TypeWinston
)

func (t SessionType) String() string {
	switch t {
	case TypeRandom:
		return "random"
	case TypePremade:
		return "premade"
	case TypeSwiss:
		return "swiss"
	case TypeWinston:
		return "winston"
	default:
		return "?"
	}
}

func (t SessionType) PrettyString() string {
	switch t {
	case TypeRandom:
		return "Random Teams"
	case TypePremade:
		return "Premade Teams"
	case TypeSwiss:
		return "Swiss"
	case TypeWinston:
		return "Winston"
	default:
		return "?"
	}
}

// ManualTeams reports whether team rosters are built by explicit assignment
// instead of a shuffle at team formation time.
func (t SessionType) ManualTeams() bool {
	return t != TypeRandom
}

type Stage int

const (
	StageUnknown Stage = iota
	StageSignUp
	StageReadyCheck
	StageTeamsFormed
	StagePairing
	StageReporting
	StageCompleted
	StageCanceled
)

func (s Stage) String() string {
	switch s {
	case StageSignUp:
		return "signup"
	case StageReadyCheck:
		return "ready-check"
	case StageTeamsFormed:
		return "teams"
	case StagePairing:
		return "pairing"
	case StageReporting:
		return "reporting"
	case StageCompleted:
		return "complete"
	case StageCanceled:
		return "canceled"
	default:
		return "?"
	}
}

func (s Stage) PrettyString() string {
	switch s {
	case StageSignUp:
		return "Sign-Up"
	case StageReadyCheck:
		return "Ready Check"
	case StageTeamsFormed:
		return "Teams Formed"
	case StagePairing:
		return "Pairing"
	case StageReporting:
		return "Reporting"
	case StageCompleted:
		return "Completed"
	case StageCanceled:
		return "Canceled"
	default:
		return "?"
	}
}

func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageCanceled
}

type ReadyState int

const (
	ReadyNoResponse ReadyState = iota
	ReadyYes
	ReadyNo
)

func (r ReadyState) String() string {
	switch r {
	case ReadyNoResponse:
		return "no-response"
	case ReadyYes:
		return "ready"
	case ReadyNo:
		return "not-ready"
	default:
		return "?"
	}
}

type TeamSide int

const (
	TeamNone TeamSide = iota
	TeamA
	TeamB
)

func (s TeamSide) String() string {
	switch s {
	case TeamA:
		return "team-a"
	case TeamB:
		return "team-b"
	default:
		return "?"
	}
}

// Pairing is one scheduled match inside a round.
type Pairing struct {
	Player   string `json:"player"`
	Opponent string `json:"opponent"`
	Match    int    `json:"match"`
}

func (p Pairing) Clone() Pairing { return p }

type MatchResult struct {
	Match       int     `json:"match" gorm:"primaryKey;autoIncrement:false"`
	Player1     string  `json:"player1"`
	Player2     string  `json:"player2"`
	Player1Wins int     `json:"player1_wins"`
	Player2Wins int     `json:"player2_wins"`
	Winner      *string `json:"winner,omitempty"`
}

func (r MatchResult) Clone() MatchResult {
	r.Winner = clone.TrivialPtr(r.Winner)
	return r
}

// Played reports whether any games were recorded for the match. A 0-0 entry
// means the match was never played.
func (r MatchResult) Played() bool {
	return r.Player1Wins != 0 || r.Player2Wins != 0
}

// Resolved reports whether the match needs no further reporting: either a
// winner is known or it was played to an equal score.
func (r MatchResult) Resolved() bool {
	return r.Winner != nil || r.Played()
}
