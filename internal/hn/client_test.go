package hn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:     baseURL,
		MaxRetries:  3,
		Timeout:     2 * time.Second,
		MinInterval: time.Millisecond,
		BackoffBase: time.Millisecond,
	})
}

func TestItem_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/item/100.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"id":100,"type":"story","title":"Go 2 announced","score":42,"kids":[201,202]}`)
	}))
	defer srv.Close()

	it, err := testClient(srv.URL).Item(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.ID != 100 || it.Type != "story" || it.Score != 42 {
		t.Errorf("unexpected item: %+v", it)
	}
	if len(it.Kids) != 2 {
		t.Errorf("got %d kids, want 2", len(it.Kids))
	}
}

func TestItem_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Item(context.Background(), 7)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestItem_NullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "null")
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Item(context.Background(), 7)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestItem_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Item(context.Background(), 7)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestItem_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"id":7,"type":"comment","parent":100,"text":"hi"}`)
	}))
	defer srv.Close()

	it, err := testClient(srv.URL).Item(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Parent != 100 {
		t.Errorf("got parent %d, want 100", it.Parent)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("got %d calls, want 3", got)
	}
}

func TestItem_ExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Item(context.Background(), 7)
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want *TransientError", err)
	}
	if te.Attempts != 3 {
		t.Errorf("got %d attempts, want 3", te.Attempts)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("got %d calls, want 3", got)
	}
}

func TestTopStories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/topstories.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `[100,101,102]`)
	}))
	defer srv.Close()

	ids, err := testClient(srv.URL).TopStories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 || ids[0] != 100 {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestGet_RespectsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:     srv.URL,
		MaxRetries:  5,
		MinInterval: time.Millisecond,
		BackoffBase: time.Hour, // force the wait path
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Item(ctx, 7)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimit_SpacesRequests(t *testing.T) {
	var times []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times = append(times, time.Now())
		fmt.Fprint(w, `[1]`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MinInterval: 30 * time.Millisecond, BackoffBase: time.Millisecond})
	for i := 0; i < 3; i++ {
		if _, err := c.TopStories(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 20*time.Millisecond {
			t.Errorf("request %d followed after %v, want >= ~30ms", i, gap)
		}
	}
}
