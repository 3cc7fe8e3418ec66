package publisher

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"playlog/logger"
	"playlog/model"
)

// SignatureHeader carries the lowercase hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-HMAC-Signature"

const (
	// maxRetries is the retry ceiling for a single event: 1 initial attempt
	// plus maxRetries retries.
	maxRetries = 5
	// backoffStep is multiplied by the retry index for a linear backoff of
	// 0, 100, 200, 300, 400 ms between attempts.
	backoffStep = 100 * time.Millisecond
)

// State of the worker loop.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateTerminated
)

// Publisher is the single consumer of the delivery channel. It serializes,
// signs and POSTs each event, retries failures with linear backoff, keeps an
// ordered backlog of events that exhausted their retries, and drains that
// backlog once when the stop sentinel arrives.
//
// The URL and signer are owned exclusively by the worker goroutine and are
// mutated only while processing a ConfigChanged event, so no locking is
// needed beyond the channel itself.
type Publisher struct {
	client  *http.Client
	ch      *Channel
	url     string
	signer  *Signer
	backlog []model.Event
	state   atomic.Int32

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(time.Duration)
}

// New creates a publisher reading from ch. Construction fails if the initial
// secret cannot produce a signer; that failure aborts pipeline startup.
func New(client *http.Client, url string, secret []byte, ch *Channel) (*Publisher, error) {
	signer, err := NewSigner(secret)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Publisher{
		client: client,
		ch:     ch,
		url:    url,
		signer: signer,
		sleep:  time.Sleep,
	}, nil
}

// State reports the worker state. Safe to call from any goroutine.
func (p *Publisher) State() State {
	return State(p.state.Load())
}

// Backlog returns a copy of the events that exhausted their retries and are
// waiting for the shutdown drain.
func (p *Publisher) Backlog() []model.Event {
	out := make([]model.Event, len(p.backlog))
	copy(out, p.backlog)
	return out
}

// Run is the worker loop. It returns only after the stop sentinel has been
// received and the backlog drained; the owner joins on it during shutdown.
func (p *Publisher) Run() {
	for {
		payload, ok := p.ch.Receive()
		if !ok {
			// The channel can only be torn down by the owner after shutdown,
			// so a closed channel here means the producer is gone for good.
			// Treat it like the sentinel rather than spinning forever.
			logger.Warn("event channel closed without a stop sentinel")
			break
		}
		if payload.Stop {
			break
		}
		switch event := payload.Event.(type) {
		case model.ConfigChanged:
			p.reconfigure(event)
		default:
			if err := p.publishWithRetry(event); err != nil {
				logger.Error("failed to publish event, moving to backlog",
					logger.String("event", string(event.Type())),
					logger.ErrorField(err))
				p.backlog = append(p.backlog, event)
			}
		}
	}

	p.state.Store(int32(StateDraining))
	p.drain()
	p.state.Store(int32(StateTerminated))
}

// reconfigure applies a ConfigChanged event. The URL is replaced
// unconditionally. A bad secret keeps the previous signer without rolling the
// URL back; the two fields are deliberately not atomic with each other.
func (p *Publisher) reconfigure(event model.ConfigChanged) {
	p.url = event.URL
	signer, err := NewSigner([]byte(event.Secret))
	if err != nil {
		logger.Error("failed to reload signing secret, keeping previous key",
			logger.ErrorField(err))
		return
	}
	p.signer = signer
	logger.Info("delivery endpoint reconfigured", logger.String("url", p.url))
}

// publishWithRetry attempts delivery up to 1+maxRetries times, sleeping
// backoffStep*attempt before each retry. Runs synchronously on the worker
// goroutine; a failing event delays everything queued behind it.
func (p *Publisher) publishWithRetry(event model.Event) error {
	for attempt := 0; ; attempt++ {
		err := p.publish(event)
		if err == nil {
			return nil
		}
		if attempt == maxRetries {
			return err
		}
		logger.Warn("failed to publish event, trying again",
			logger.String("event", string(event.Type())),
			logger.Int("attempt", attempt+1),
			logger.ErrorField(err))
		p.sleep(backoffStep * time.Duration(attempt))
	}
}

// publish makes a single delivery attempt. Success is an HTTP 2xx status;
// any other status or transport error is a uniform delivery failure.
func (p *Publisher) publish(event model.Event) error {
	body, err := model.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, p.signer.SignHex(body))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector responded with status %d", resp.StatusCode)
	}
	return nil
}

// drain gives every backlog entry exactly one more delivery attempt, in
// insertion order, with no retry and no backoff. Failures are logged and the
// events are lost; this is the pipeline's intentional loss boundary.
func (p *Publisher) drain() {
	for _, event := range p.backlog {
		if err := p.publish(event); err != nil {
			logger.Error("failed to publish backlogged event",
				logger.String("event", string(event.Type())),
				logger.ErrorField(err))
		}
	}
	p.backlog = nil
}
