package draftlog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aberdasher/draftbot/internal/util/slogx"
)

type fakeLogDB struct {
	mu    sync.Mutex
	saved [][]byte
}

func (d *fakeLogDB) SaveDraftLog(_ context.Context, sessionID, draftID string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saved = append(d.saved, data)
	return nil
}

func (d *fakeLogDB) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.saved)
}

func testCollectorOptions(srvURL string) Options {
	return Options{
		BaseURL:        srvURL,
		PollInterval:   10 * time.Millisecond,
		RequestTimeout: time.Second,
		DelayedWait:    20 * time.Millisecond,
		MaxAge:         5 * time.Second,
	}
}

func TestCollectorDelayedThenFinal(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getDraftLog/DBTESTDRFT" {
			t.Errorf("unexpected path: %v", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case n == 1:
			http.NotFound(w, r)
		case n == 2:
			_, _ = w.Write([]byte(`{"delayed":true,"sessionID":"DBTESTDRFT"}`))
		default:
			_, _ = w.Write([]byte(`{"delayed":false,"sessionID":"DBTESTDRFT","users":{}}`))
		}
	}))
	defer srv.Close()

	db := &fakeLogDB{}
	c := NewCollector(slogx.DiscardLogger(), testCollectorOptions(srv.URL), db, "sess1", "TESTDRFT")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	// The delayed response is not saved, only the final log.
	if got := db.count(); got != 1 {
		t.Fatalf("saved logs: expected = 1, got = %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 3 {
		t.Fatalf("fetches: expected = 3, got = %v", hits)
	}
}

func TestCollectorSavesSecondDelayed(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"delayed":true,"sessionID":"DBTESTDRFT"}`))
	}))
	defer srv.Close()

	db := &fakeLogDB{}
	c := NewCollector(slogx.DiscardLogger(), testCollectorOptions(srv.URL), db, "sess1", "TESTDRFT")
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	// The delayed back-off happens only once; a still-delayed log on the
	// following fetch is stored as-is.
	if got := db.count(); got != 1 {
		t.Fatalf("saved logs: expected = 1, got = %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 2 {
		t.Fatalf("fetches: expected = 2, got = %v", hits)
	}
}

func TestCollectorCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewCollector(slogx.DiscardLogger(), testCollectorOptions(srv.URL), &fakeLogDB{}, "sess1", "TESTDRFT")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled run: expected = context.Canceled, got = %v", err)
	}
}

func TestCollectorGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	o := testCollectorOptions(srv.URL)
	o.MaxAge = 30 * time.Millisecond
	c := NewCollector(slogx.DiscardLogger(), o, &fakeLogDB{}, "sess1", "TESTDRFT")
	err := c.Run(context.Background())
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected give-up error, got = %v", err)
	}
}
