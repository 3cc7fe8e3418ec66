package publisher

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"playlog/model"
)

// recordingServer captures every delivery attempt in order.
type recordingServer struct {
	mu       sync.Mutex
	status   int
	requests []recordedRequest
}

type recordedRequest struct {
	signature string
	body      []byte
}

func newRecordingServer(status int) (*recordingServer, *httptest.Server) {
	rs := &recordingServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.requests = append(rs.requests, recordedRequest{
			signature: r.Header.Get(SignatureHeader),
			body:      body,
		})
		status := rs.status
		rs.mu.Unlock()
		w.WriteHeader(status)
	}))
	return rs, srv
}

func (rs *recordingServer) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.requests)
}

func (rs *recordingServer) titles(t *testing.T) []string {
	t.Helper()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var titles []string
	for _, req := range rs.requests {
		var env struct {
			Data struct {
				Title string `json:"title"`
			} `json:"data"`
		}
		if err := json.Unmarshal(req.body, &env); err != nil {
			t.Fatalf("cannot decode recorded body: %v", err)
		}
		titles = append(titles, env.Data.Title)
	}
	return titles
}

func newTestPublisher(t *testing.T, url, secret string) (*Publisher, *Channel, *[]time.Duration) {
	t.Helper()
	ch := NewChannel()
	pub, err := New(nil, url, []byte(secret), ch)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sleeps := &[]time.Duration{}
	pub.sleep = func(d time.Duration) {
		*sleeps = append(*sleeps, d)
	}
	return pub, ch, sleeps
}

func startEvent(title string) model.Event {
	return model.Start{TrackInfo: model.TrackInfo{
		Artist:   "A",
		Album:    "B",
		Title:    title,
		Duration: 180.0,
	}}
}

func TestPublishSucceedsFirstTry(t *testing.T) {
	rs, srv := newRecordingServer(http.StatusOK)
	defer srv.Close()

	pub, _, sleeps := newTestPublisher(t, srv.URL, "secret")

	if err := pub.publishWithRetry(startEvent("ok")); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if rs.count() != 1 {
		t.Errorf("expected 1 attempt, got %d", rs.count())
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no backoff sleeps, got %v", *sleeps)
	}
}

func TestPublishRetryBound(t *testing.T) {
	rs, srv := newRecordingServer(http.StatusInternalServerError)
	defer srv.Close()

	pub, _, sleeps := newTestPublisher(t, srv.URL, "secret")

	if err := pub.publishWithRetry(startEvent("doomed")); err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if rs.count() != 6 {
		t.Errorf("expected 6 attempts (1 initial + 5 retries), got %d", rs.count())
	}

	want := []time.Duration{0, 100, 200, 300, 400}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d*time.Millisecond {
			t.Errorf("sleep %d: expected %v, got %v", i, d*time.Millisecond, (*sleeps)[i])
		}
	}
}

func TestRunMovesFailedEventToBacklog(t *testing.T) {
	rs, srv := newRecordingServer(http.StatusInternalServerError)
	defer srv.Close()

	pub, ch, _ := newTestPublisher(t, srv.URL, "secret")
	ch.Send(EventPayload(startEvent("doomed")))
	ch.Send(StopPayload())

	pub.Run()

	// 6 retried attempts while running, then exactly one drain attempt.
	if rs.count() != 7 {
		t.Errorf("expected 7 total attempts, got %d", rs.count())
	}
	if pub.State() != StateTerminated {
		t.Errorf("expected terminated state, got %v", pub.State())
	}
	if len(pub.Backlog()) != 0 {
		t.Errorf("backlog should be empty after drain, got %d entries", len(pub.Backlog()))
	}
}

func TestRunPreservesFIFOOrder(t *testing.T) {
	rs, srv := newRecordingServer(http.StatusOK)
	defer srv.Close()

	pub, ch, _ := newTestPublisher(t, srv.URL, "secret")
	titles := []string{"first", "second", "third"}
	for _, title := range titles {
		ch.Send(EventPayload(startEvent(title)))
	}
	ch.Send(StopPayload())

	pub.Run()

	got := rs.titles(t)
	if len(got) != len(titles) {
		t.Fatalf("expected %d deliveries, got %d", len(titles), len(got))
	}
	for i, want := range titles {
		if got[i] != want {
			t.Errorf("delivery %d: expected %q, got %q", i, want, got[i])
		}
	}
	if pub.State() != StateTerminated {
		t.Errorf("expected terminated state, got %v", pub.State())
	}
}

func TestDrainAttemptsEachBacklogEventOnce(t *testing.T) {
	rs, srv := newRecordingServer(http.StatusInternalServerError)
	defer srv.Close()

	pub, ch, _ := newTestPublisher(t, srv.URL, "secret")
	ch.Send(EventPayload(startEvent("alpha")))
	ch.Send(EventPayload(startEvent("beta")))
	ch.Send(StopPayload())

	pub.Run()

	titles := rs.titles(t)
	// 6 attempts for each event while running, then one drain attempt each,
	// in original insertion order.
	if len(titles) != 14 {
		t.Fatalf("expected 14 total attempts, got %d", len(titles))
	}
	for i := 0; i < 6; i++ {
		if titles[i] != "alpha" {
			t.Fatalf("attempt %d: expected alpha, got %q", i, titles[i])
		}
	}
	for i := 6; i < 12; i++ {
		if titles[i] != "beta" {
			t.Fatalf("attempt %d: expected beta, got %q", i, titles[i])
		}
	}
	if titles[12] != "alpha" || titles[13] != "beta" {
		t.Errorf("drain order wrong: got %v", titles[12:])
	}
}

func TestReconfigureSwitchesURLAndKey(t *testing.T) {
	oldRS, oldSrv := newRecordingServer(http.StatusOK)
	defer oldSrv.Close()
	newRS, newSrv := newRecordingServer(http.StatusOK)
	defer newSrv.Close()

	pub, ch, _ := newTestPublisher(t, oldSrv.URL, "old-secret")
	ch.Send(EventPayload(model.ConfigChanged{URL: newSrv.URL, Secret: "new-secret"}))
	ch.Send(EventPayload(startEvent("after")))
	ch.Send(StopPayload())

	pub.Run()

	if oldRS.count() != 0 {
		t.Errorf("old endpoint received %d requests, expected 0", oldRS.count())
	}
	if newRS.count() != 1 {
		t.Fatalf("new endpoint received %d requests, expected 1", newRS.count())
	}

	newRS.mu.Lock()
	req := newRS.requests[0]
	newRS.mu.Unlock()

	signer, _ := NewSigner([]byte("new-secret"))
	if req.signature != signer.SignHex(req.body) {
		t.Error("delivery after reconfiguration was not signed with the new secret")
	}
}

func TestReconfigureKeepsKeyOnInvalidSecret(t *testing.T) {
	rs, srv := newRecordingServer(http.StatusOK)
	defer srv.Close()

	pub, ch, _ := newTestPublisher(t, "http://127.0.0.1:1/unused", "old-secret")
	// The URL must switch even though the secret is rejected; the two fields
	// are not atomic with each other.
	ch.Send(EventPayload(model.ConfigChanged{URL: srv.URL, Secret: ""}))
	ch.Send(EventPayload(startEvent("after")))
	ch.Send(StopPayload())

	pub.Run()

	if rs.count() != 1 {
		t.Fatalf("new endpoint received %d requests, expected 1", rs.count())
	}

	rs.mu.Lock()
	req := rs.requests[0]
	rs.mu.Unlock()

	signer, _ := NewSigner([]byte("old-secret"))
	if req.signature != signer.SignHex(req.body) {
		t.Error("delivery was not signed with the retained previous secret")
	}
}

func TestConfigChangedIsNeverRetried(t *testing.T) {
	pub, ch, sleeps := newTestPublisher(t, "http://127.0.0.1:1/unreachable", "secret")
	ch.Send(EventPayload(model.ConfigChanged{URL: "http://127.0.0.1:1/also-unreachable", Secret: "next"}))
	ch.Send(StopPayload())

	pub.Run()

	if len(*sleeps) != 0 {
		t.Errorf("ConfigChanged triggered backoff sleeps: %v", *sleeps)
	}
	if len(pub.Backlog()) != 0 {
		t.Errorf("ConfigChanged ended up in the backlog")
	}
}

func TestTransportFailureFeedsRetry(t *testing.T) {
	// Nothing listens here; every attempt is a connection error.
	pub, ch, sleeps := newTestPublisher(t, "http://127.0.0.1:1/nope", "secret")
	ch.Send(EventPayload(startEvent("unroutable")))
	ch.Send(StopPayload())

	pub.Run()

	if len(*sleeps) != 5 {
		t.Errorf("expected 5 backoff sleeps for transport failures, got %d", len(*sleeps))
	}
	if pub.State() != StateTerminated {
		t.Errorf("expected terminated state, got %v", pub.State())
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	rs, srv := newRecordingServer(http.StatusOK)
	defer srv.Close()

	pipeline, err := StartPipeline(nil, srv.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("StartPipeline failed: %v", err)
	}

	pipeline.Publish(startEvent("C"))
	pipeline.Shutdown()

	if rs.count() != 1 {
		t.Errorf("expected 1 delivery, got %d", rs.count())
	}
	if pipeline.pub.State() != StateTerminated {
		t.Errorf("worker not terminated after Shutdown")
	}
	if pipeline.ch.Len() != 0 {
		t.Errorf("channel not empty after Shutdown")
	}
}

func TestPipelineStartupFailsOnEmptySecret(t *testing.T) {
	if _, err := StartPipeline(nil, "http://example.com", nil); err == nil {
		t.Fatal("expected startup failure with empty secret")
	}
}

func TestPipelinePublishAfterShutdownIsDropped(t *testing.T) {
	rs, srv := newRecordingServer(http.StatusOK)
	defer srv.Close()

	pipeline, err := StartPipeline(nil, srv.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("StartPipeline failed: %v", err)
	}
	pipeline.Shutdown()

	// Logged and dropped, never delivered.
	pipeline.Publish(startEvent("too late"))
	if rs.count() != 0 {
		t.Errorf("event published after shutdown was delivered")
	}
}
