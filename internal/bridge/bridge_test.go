package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aberdasher/draftbot/internal/util/backoff"
	"github.com/aberdasher/draftbot/internal/util/slogx"
)

var testUpgrader = websocket.Upgrader{}

func testOptions(srvURL string) Options {
	return Options{
		URL:          "ws" + strings.TrimPrefix(srvURL, "http"),
		Quorum:       2,
		DialTimeout:  time.Second,
		WriteTimeout: time.Second,
		AckTimeout:   time.Second,
		PollInterval: 10 * time.Millisecond,
		Import: backoff.Options{
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Jitter:      time.Nanosecond,
			MaxAttempts: 3,
		},
	}
}

func writeTestFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	f := frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Errorf("marshal %v: %v", event, err)
			return
		}
		f.Data = raw
	}
	if err := conn.WriteJSON(f); err != nil {
		t.Errorf("write %v: %v", event, err)
	}
}

func TestBridgeReachesQuorum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sessionID"); got != "DBTESTDRFT" {
			t.Errorf("session query param: expected = DBTESTDRFT, got = %v", got)
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		polls := 0
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Event {
			case eventImportCube:
				var data importCubeData
				if err := json.Unmarshal(f.Data, &data); err != nil {
					t.Errorf("unmarshal import: %v", err)
					return
				}
				if data.CubeID != "modern-cube" {
					t.Errorf("cube id: expected = modern-cube, got = %v", data.CubeID)
				}
				writeTestFrame(t, conn, eventImportCubeAck, importCubeAckData{})
			case eventGetUsers:
				polls++
				users := []sessionUser{{UserID: "DraftBot", UserName: "DraftBot"}}
				if polls >= 1 {
					users = append(users, sessionUser{UserID: "u1", UserName: "Alice"})
				}
				if polls >= 2 {
					users = append(users, sessionUser{UserID: "u2", UserName: "Bob"})
				}
				writeTestFrame(t, conn, eventSessionUsers, users)
			}
		}
	}))
	defer srv.Close()

	b := New(slogx.DiscardLogger(), testOptions(srv.URL), Config{
		SessionID: "sess1",
		DraftID:   "TESTDRFT",
		CubeID:    "modern-cube",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := b.Status(); got != StateDisconnected {
		t.Fatalf("final state: expected = %v, got = %v", StateDisconnected, got)
	}
}

func TestBridgeQuorumPollPacing(t *testing.T) {
	getUsers := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Event {
			case eventImportCube:
				writeTestFrame(t, conn, eventImportCubeAck, importCubeAckData{})
				// Flood the bridge with sub-quorum presence updates before
				// letting the quorum arrive.
				go func() {
					users := []sessionUser{{UserID: "DraftBot"}, {UserID: "u1"}}
					for range 3 {
						time.Sleep(5 * time.Millisecond)
						writeTestFrame(t, conn, eventSessionUsers, users)
					}
					time.Sleep(5 * time.Millisecond)
					writeTestFrame(t, conn, eventSessionUsers,
						append(users, sessionUser{UserID: "u2"}))
				}()
			case eventGetUsers:
				getUsers <- struct{}{}
			}
		}
	}))
	defer srv.Close()

	o := testOptions(srv.URL)
	// With no refills during the test window, only the initial query may go
	// out no matter how many presence updates arrive.
	o.PollInterval = time.Minute
	b := New(slogx.DiscardLogger(), o, Config{
		SessionID: "sess1",
		DraftID:   "TESTDRFT",
		CubeID:    "modern-cube",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(getUsers); got != 1 {
		t.Fatalf("getUsers queries: expected = 1, got = %v", got)
	}
}

func TestBridgeImportRetryExhaustion(t *testing.T) {
	imports := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == eventImportCube {
				imports <- struct{}{}
				writeTestFrame(t, conn, eventImportCubeAck, importCubeAckData{Error: "no such cube"})
			}
		}
	}))
	defer srv.Close()

	b := New(slogx.DiscardLogger(), testOptions(srv.URL), Config{
		SessionID: "sess1",
		DraftID:   "TESTDRFT",
		CubeID:    "nonexistent",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "retry limit exceeded") {
		t.Fatalf("exhausted import: expected retry limit error, got = %v", err)
	}
	// MaxAttempts bounds the total number of import attempts.
	if got := len(imports); got != 3 {
		t.Fatalf("import attempts: expected = 3, got = %v", got)
	}
}

func TestBridgeCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never acknowledge anything.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	o := testOptions(srv.URL)
	o.AckTimeout = time.Minute
	b := New(slogx.DiscardLogger(), o, Config{SessionID: "sess1", DraftID: "TESTDRFT"})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if err := b.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled run: expected = context.Canceled, got = %v", err)
	}
}
