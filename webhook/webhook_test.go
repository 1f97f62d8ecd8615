package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliverSigned(t *testing.T) {
	var gotSig string
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		if want := Sign("s3cret", body); gotSig != want {
			t.Errorf("signature = %q, want %q", gotSig, want)
		}
		json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	ev := NewEvent(EventLoginSucceeded, "run-1", map[string]string{"final_url": "http://p/srun_portal_success"})
	if err := Deliver(context.Background(), srv.URL, "s3cret", ev); err != nil {
		t.Fatal(err)
	}
	if got.Type != EventLoginSucceeded || got.RunID != "run-1" {
		t.Errorf("received %+v", got)
	}
}

func TestDeliverUnsignedAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature without a secret")
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := Deliver(context.Background(), srv.URL, "", NewEvent(EventLoginFailed, "", nil)); err == nil {
		t.Error("expected an error for a 502 answer")
	}
}

func TestNotifierRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}

	select {
	case <-n.Publish(NewEvent(EventNetworkOffline, "", nil)):
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNotifierDisabled(t *testing.T) {
	n := NewNotifier("", "", nil)
	if n.Enabled() {
		t.Error("Enabled() with no URL")
	}
	<-n.Publish(NewEvent(EventLoginFailed, "", nil))
}
