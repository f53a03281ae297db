package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifyAllFiltersByEvent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := Subscriber{URL: srv.URL, Events: map[string]bool{"rollback": true}, Timeout: time.Second}
	n := New([]Subscriber{sub}, nil, nil, nil)

	results := n.NotifyAll(context.Background(), "promote", map[string]interface{}{"tag": "v1.0.0"})
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no HTTP calls for unsubscribed event, got %d", hits)
	}
	if !results[0].Success {
		t.Errorf("expected filtered-out subscriber to report success (no-op), got %v", results[0])
	}
}

func TestNotifyAllDeliversOnSubscribedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := Subscriber{URL: srv.URL, Events: map[string]bool{"promote": true}, Timeout: time.Second}
	n := New([]Subscriber{sub}, nil, nil, nil)

	results := n.NotifyAll(context.Background(), "promote", map[string]interface{}{"tag": "v1.0.0"})
	if !results[0].Success || results[0].StatusCode != 200 {
		t.Fatalf("expected successful delivery, got %v", results[0])
	}
}

func TestRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := Subscriber{URL: srv.URL, Events: map[string]bool{"promote": true}, Timeout: time.Second, RetryCount: 3}
	n := New([]Subscriber{sub}, nil, nil, nil)

	results := n.NotifyAll(context.Background(), "promote", nil)
	if !results[0].Success {
		t.Fatalf("expected eventual success, got %v", results[0])
	}
	if results[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", results[0].Attempts)
	}
}

func TestDoesNotRetryOn4xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sub := Subscriber{URL: srv.URL, Events: map[string]bool{"promote": true}, Timeout: time.Second, RetryCount: 3}
	n := New([]Subscriber{sub}, nil, nil, nil)

	results := n.NotifyAll(context.Background(), "promote", nil)
	if results[0].Success {
		t.Fatal("expected failure on 4xx")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("expected exactly 1 attempt for 4xx (no retry), got %d", attempts)
	}
}

func TestOneSubscriberFailureDoesNotBlockAnother(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	subs := []Subscriber{
		{URL: bad.URL, Events: map[string]bool{"promote": true}, Timeout: time.Second, RetryCount: 0},
		{URL: good.URL, Events: map[string]bool{"promote": true}, Timeout: time.Second},
	}
	n := New(subs, nil, nil, nil)
	results := n.NotifyAll(context.Background(), "promote", nil)

	if results[0].Success {
		t.Error("expected first subscriber to fail")
	}
	if !results[1].Success {
		t.Error("expected second subscriber to succeed despite first failing")
	}
}
