package draftapi

import (
	"context"

	"github.com/aberdasher/draftbot/internal/draft"
)

type CreateRequest struct {
	Type   draft.SessionType `json:"type"`
	CubeID string            `json:"cube_id,omitempty"`
}

type CreateResponse struct {
	Session *draft.Session `json:"session"`
}

type SignUpRequest struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player"`
	Name      string `json:"name,omitempty"`
}

type SignUpResponse struct {
	Session *draft.Session `json:"session"`
}

type CancelSignUpRequest struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player"`
}

type CancelSignUpResponse struct {
	Session *draft.Session `json:"session"`
}

type ReadyCheckRequest struct {
	SessionID string `json:"session_id"`
}

type ReadyCheckResponse struct {
	Session *draft.Session `json:"session"`
}

type ReadyRequest struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player"`
	Ready     bool   `json:"ready"`
}

type ReadyResponse struct {
	Session  *draft.Session `json:"session"`
	AllReady bool           `json:"all_ready"`
}

type AssignTeamRequest struct {
	SessionID string         `json:"session_id"`
	Player    string         `json:"player"`
	Name      string         `json:"name,omitempty"`
	Team      draft.TeamSide `json:"team"`
}

type AssignTeamResponse struct {
	Session *draft.Session `json:"session"`
}

type FormTeamsRequest struct {
	SessionID string `json:"session_id"`
}

type FormTeamsResponse struct {
	Session *draft.Session `json:"session"`
}

type PairingsRequest struct {
	SessionID string `json:"session_id"`
}

type PairingsResponse struct {
	Session *draft.Session `json:"session"`
}

type ReportRequest struct {
	SessionID   string `json:"session_id"`
	Match       int    `json:"match"`
	Player1Wins int    `json:"player1_wins"`
	Player2Wins int    `json:"player2_wins"`
}

type ReportResponse struct {
	Session *draft.Session `json:"session"`
	Tally   draft.Tally    `json:"tally"`
}

type CompleteRequest struct {
	SessionID string `json:"session_id"`
	Force     bool   `json:"force,omitempty"`
}

type CompleteResponse struct {
	Session *draft.Session `json:"session"`
	Tally   draft.Tally    `json:"tally"`
	Winner  draft.TeamSide `json:"winner"`
}

type SeatingRequest struct {
	SessionID string `json:"session_id"`
}

type SeatingResponse struct {
	// Order interleaves the two teams the way the drafting-service host
	// seats players around the table.
	Order []string `json:"order"`
}

type NextMatchRequest struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player"`
}

type NextMatchResponse struct {
	// Match is nil when the player has nothing left to report.
	Match *draft.MatchResult `json:"match,omitempty"`
}

type CancelRequest struct {
	SessionID string `json:"session_id"`
}

type CancelResponse struct {
	Session *draft.Session `json:"session"`
}

type GetRequest struct {
	SessionID string `json:"session_id"`
}

type GetResponse struct {
	Session *draft.Session `json:"session"`
}

type ListRequest struct{}

type ListResponse struct {
	Sessions []*draft.Session `json:"sessions"`
}

type API interface {
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	SignUp(ctx context.Context, req *SignUpRequest) (*SignUpResponse, error)
	CancelSignUp(ctx context.Context, req *CancelSignUpRequest) (*CancelSignUpResponse, error)
	ReadyCheck(ctx context.Context, req *ReadyCheckRequest) (*ReadyCheckResponse, error)
	Ready(ctx context.Context, req *ReadyRequest) (*ReadyResponse, error)
	AssignTeam(ctx context.Context, req *AssignTeamRequest) (*AssignTeamResponse, error)
	FormTeams(ctx context.Context, req *FormTeamsRequest) (*FormTeamsResponse, error)
	Pairings(ctx context.Context, req *PairingsRequest) (*PairingsResponse, error)
	Report(ctx context.Context, req *ReportRequest) (*ReportResponse, error)
	Seating(ctx context.Context, req *SeatingRequest) (*SeatingResponse, error)
	NextMatch(ctx context.Context, req *NextMatchRequest) (*NextMatchResponse, error)
	Complete(ctx context.Context, req *CompleteRequest) (*CompleteResponse, error)
	Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error)
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)
}
