package publisher

import (
	"net/http"

	"playlog/logger"
	"playlog/model"
)

// Pipeline ties a channel to a running publisher goroutine and exposes the
// two operations the producer side gets: a non-blocking Publish and a
// Shutdown that waits for the drain to finish.
type Pipeline struct {
	ch   *Channel
	pub  *Publisher
	done chan struct{}
}

// StartPipeline builds the channel and publisher and launches the worker
// goroutine. A missing or empty secret fails here, before anything starts.
func StartPipeline(client *http.Client, url string, secret []byte) (*Pipeline, error) {
	ch := NewChannel()
	pub, err := New(client, url, secret, ch)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		ch:   ch,
		pub:  pub,
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		pub.Run()
	}()
	return p, nil
}

// Publish enqueues an event. It never blocks and never reports delivery
// failures back to the caller; a send on a torn-down pipeline is logged and
// the event dropped.
func (p *Pipeline) Publish(event model.Event) {
	if err := p.ch.Send(EventPayload(event)); err != nil {
		logger.Error("cannot enqueue event",
			logger.String("event", string(event.Type())),
			logger.ErrorField(err))
	}
}

// Shutdown enqueues the stop sentinel and waits for the worker to terminate.
// FIFO ordering guarantees every event published before this call gets its
// delivery attempts before the drain runs.
func (p *Pipeline) Shutdown() {
	if err := p.ch.Send(StopPayload()); err != nil {
		logger.Error("cannot enqueue stop sentinel", logger.ErrorField(err))
	}
	<-p.done
	p.ch.Close()
}
