package draftapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aberdasher/draftbot/internal/bridge"
	"github.com/aberdasher/draftbot/internal/draft"
	"github.com/aberdasher/draftbot/internal/registry"
	"github.com/aberdasher/draftbot/internal/util/slogx"
)

type memDB struct {
	mu       sync.Mutex
	sessions map[string]*draft.Session
}

func newMemDB() *memDB {
	return &memDB{sessions: make(map[string]*draft.Session)}
}

func (d *memDB) ListSessions(context.Context) ([]*draft.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := make([]*draft.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		res = append(res, s.Clone())
	}
	return res, nil
}

func (d *memDB) SaveSession(_ context.Context, s *draft.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[s.ID] = s.Clone()
	return nil
}

func (d *memDB) DeleteSession(_ context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, sessionID)
	return nil
}

func (d *memDB) SaveDraftLog(context.Context, string, string, []byte) error {
	return nil
}

type nopProvisioner struct{}

func (nopProvisioner) CreateChannel(_ context.Context, name string, _ []string) (string, error) {
	return "ch-" + name, nil
}

func (nopProvisioner) DeleteChannel(context.Context, string) error { return nil }

const testToken = "test-token"

func newTestAPI(t *testing.T) API {
	t.Helper()
	ctx := context.Background()
	log := slogx.DiscardLogger()
	db := newMemDB()
	reg, err := registry.New(ctx, log, db, nopProvisioner{}, registry.Options{
		SaveInterval:  time.Hour,
		SweepInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(reg.Close)
	svc := NewService(ctx, log, ServiceOptions{
		// Nothing listens here, so the keep-alive bridge fails fast without
		// touching the network.
		Bridge: bridge.Options{URL: "ws://127.0.0.1:1", DialTimeout: 10 * time.Millisecond},
	}, reg, db)
	t.Cleanup(svc.Close)
	mux := http.NewServeMux()
	err = RegisterServer(svc, mux, ServerOptions{
		TokenChecker: func(token string) error {
			if token != testToken {
				return fmt.Errorf("bad token")
			}
			return nil
		},
	}, "/api/draft", log)
	if err != nil {
		t.Fatalf("register server: %v", err)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{
		Endpoint: srv.URL + "/api/draft",
		Token:    testToken,
	}, srv.Client())
}

func TestAPIDraftFlow(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)

	created, err := api.Create(ctx, &CreateRequest{Type: draft.TypeRandom, CubeID: "modern-cube"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Session.ID
	if created.Session.Stage != draft.StageSignUp {
		t.Fatalf("stage: expected = %v, got = %v", draft.StageSignUp, created.Session.Stage)
	}

	for i := range 6 {
		player := fmt.Sprintf("p%v", i)
		if _, err := api.SignUp(ctx, &SignUpRequest{SessionID: id, Player: player, Name: "Player " + player}); err != nil {
			t.Fatalf("sign up %v: %v", player, err)
		}
	}
	if _, err := api.SignUp(ctx, &SignUpRequest{SessionID: id, Player: "p0"}); !draft.MatchesError(err, draft.ErrAlreadySignedUp) {
		t.Fatalf("duplicate sign-up: expected = ErrAlreadySignedUp, got = %v", err)
	}

	if _, err := api.ReadyCheck(ctx, &ReadyCheckRequest{SessionID: id}); err != nil {
		t.Fatalf("ready check: %v", err)
	}
	var lastReady *ReadyResponse
	for i := range 6 {
		lastReady, err = api.Ready(ctx, &ReadyRequest{SessionID: id, Player: fmt.Sprintf("p%v", i), Ready: true})
		if err != nil {
			t.Fatalf("ready p%v: %v", i, err)
		}
	}
	if !lastReady.AllReady {
		t.Fatalf("not all ready after every vote")
	}

	formed, err := api.FormTeams(ctx, &FormTeamsRequest{SessionID: id})
	if err != nil {
		t.Fatalf("form teams: %v", err)
	}
	if len(formed.Session.TeamA) != 3 || len(formed.Session.TeamB) != 3 {
		t.Fatalf("split: expected = 3/3, got = %v/%v", len(formed.Session.TeamA), len(formed.Session.TeamB))
	}
	// Channels are provisioned after the split; re-fetch to observe them.
	got, err := api.Get(ctx, &GetRequest{SessionID: id})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Session.ChannelIDs) != 3 {
		t.Fatalf("channels: expected = 3, got = %v", len(got.Session.ChannelIDs))
	}

	paired, err := api.Pairings(ctx, &PairingsRequest{SessionID: id})
	if err != nil {
		t.Fatalf("pairings: %v", err)
	}
	if len(paired.Session.Results) != 9 {
		t.Fatalf("seeded matches: expected = 9, got = %v", len(paired.Session.Results))
	}

	var rsp *ReportResponse
	for num := range paired.Session.Results {
		rsp, err = api.Report(ctx, &ReportRequest{SessionID: id, Match: num, Player1Wins: 2, Player2Wins: 1})
		if err != nil {
			t.Fatalf("report %v: %v", num, err)
		}
	}
	if rsp.Tally.TeamAWins != 9 {
		t.Fatalf("tally: expected = 9 team A wins, got = %+v", rsp.Tally)
	}

	completed, err := api.Complete(ctx, &CompleteRequest{SessionID: id})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Winner != draft.TeamA {
		t.Fatalf("winner: expected = %v, got = %v", draft.TeamA, completed.Winner)
	}
	if completed.Session.Stage != draft.StageCompleted {
		t.Fatalf("stage: expected = %v, got = %v", draft.StageCompleted, completed.Session.Stage)
	}

	list, err := api.List(ctx, &ListRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Sessions) != 1 {
		t.Fatalf("listed sessions: expected = 1, got = %v", len(list.Sessions))
	}
}

func TestAPIEmptiedSessionCanceled(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	created, err := api.Create(ctx, &CreateRequest{Type: draft.TypeRandom})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Session.ID
	for _, p := range []string{"p0", "p1"} {
		if _, err := api.SignUp(ctx, &SignUpRequest{SessionID: id, Player: p}); err != nil {
			t.Fatalf("sign up %v: %v", p, err)
		}
	}
	first, err := api.CancelSignUp(ctx, &CancelSignUpRequest{SessionID: id, Player: "p0"})
	if err != nil {
		t.Fatalf("cancel p0: %v", err)
	}
	if first.Session.Stage != draft.StageSignUp {
		t.Fatalf("stage with players left: expected = %v, got = %v", draft.StageSignUp, first.Session.Stage)
	}
	// The last cancel empties the roster and ends the session.
	last, err := api.CancelSignUp(ctx, &CancelSignUpRequest{SessionID: id, Player: "p1"})
	if err != nil {
		t.Fatalf("cancel p1: %v", err)
	}
	if last.Session.Stage != draft.StageCanceled {
		t.Fatalf("stage after last cancel: expected = %v, got = %v", draft.StageCanceled, last.Session.Stage)
	}
	if _, err := api.Get(ctx, &GetRequest{SessionID: id}); !draft.MatchesError(err, draft.ErrNoSuchSession) {
		t.Fatalf("emptied session still present: %v", err)
	}
}

func TestAPISeatingAndNextMatch(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	created, err := api.Create(ctx, &CreateRequest{Type: draft.TypeRandom})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Session.ID
	for i := range 6 {
		player := fmt.Sprintf("p%v", i)
		if _, err := api.SignUp(ctx, &SignUpRequest{SessionID: id, Player: player}); err != nil {
			t.Fatalf("sign up %v: %v", player, err)
		}
	}
	formed, err := api.FormTeams(ctx, &FormTeamsRequest{SessionID: id})
	if err != nil {
		t.Fatalf("form teams: %v", err)
	}

	seating, err := api.Seating(ctx, &SeatingRequest{SessionID: id})
	if err != nil {
		t.Fatalf("seating: %v", err)
	}
	if len(seating.Order) != 6 {
		t.Fatalf("seating size: expected = 6, got = %v", len(seating.Order))
	}
	for i, p := range seating.Order {
		team := formed.Session.TeamB
		if i%2 == 0 {
			team = formed.Session.TeamA
		}
		if p != team[i/2] {
			t.Fatalf("seat %v not interleaved: got = %v, order = %v", i, p, seating.Order)
		}
	}

	if _, err := api.Pairings(ctx, &PairingsRequest{SessionID: id}); err != nil {
		t.Fatalf("pairings: %v", err)
	}
	player := formed.Session.TeamA[0]
	next, err := api.NextMatch(ctx, &NextMatchRequest{SessionID: id, Player: player})
	if err != nil {
		t.Fatalf("next match: %v", err)
	}
	if next.Match == nil {
		t.Fatalf("no unreported match right after pairing")
	}
	if next.Match.Player1 != player && next.Match.Player2 != player {
		t.Fatalf("match %v does not involve %v", next.Match.Match, player)
	}
	if _, err := api.Report(ctx, &ReportRequest{
		SessionID: id, Match: next.Match.Match, Player1Wins: 2, Player2Wins: 0,
	}); err != nil {
		t.Fatalf("report: %v", err)
	}
	after, err := api.NextMatch(ctx, &NextMatchRequest{SessionID: id, Player: player})
	if err != nil {
		t.Fatalf("next match after report: %v", err)
	}
	if after.Match == nil || after.Match.Match <= next.Match.Match {
		t.Fatalf("next match did not advance: before = %v, after = %+v", next.Match.Match, after.Match)
	}
}

func TestClientNullErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("null"))
	}))
	defer srv.Close()
	api := NewClient(ClientOptions{Endpoint: srv.URL, Token: testToken}, srv.Client())
	_, err := api.List(context.Background(), &ListRequest{})
	if err == nil || !strings.Contains(err.Error(), "bad error json") {
		t.Fatalf("null error body: expected bad error json, got = %v", err)
	}
}

func TestAPIErrors(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	if _, err := api.Get(ctx, &GetRequest{SessionID: "missing"}); !draft.MatchesError(err, draft.ErrNoSuchSession) {
		t.Fatalf("missing session: expected = ErrNoSuchSession, got = %v", err)
	}
	created, err := api.Create(ctx, &CreateRequest{Type: draft.TypeRandom})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := api.Pairings(ctx, &PairingsRequest{SessionID: created.Session.ID}); !draft.MatchesError(err, draft.ErrWrongStage) {
		t.Fatalf("early pairings: expected = ErrWrongStage, got = %v", err)
	}
	if _, err := api.Cancel(ctx, &CancelRequest{SessionID: created.Session.ID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := api.Get(ctx, &GetRequest{SessionID: created.Session.ID}); !draft.MatchesError(err, draft.ErrNoSuchSession) {
		t.Fatalf("canceled session still present: %v", err)
	}
}

func TestAPIBadToken(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	bad := api.(*client)
	badClient := NewClient(ClientOptions{Endpoint: bad.o.Endpoint, Token: "wrong"}, bad.client)
	if _, err := badClient.List(ctx, &ListRequest{}); err == nil {
		t.Fatalf("bad token accepted")
	}
}
