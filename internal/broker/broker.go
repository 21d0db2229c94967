// Package broker is the message-queue transport underneath the Worker
// Actor (spec.md §4.2): a JetStream-backed publish/subscribe wrapper with
// durable pull consumers and explicit ack/nak, grounded in the teacher's
// NATSEngine and WorkflowConsumer (internal/workflows/runtime/nats_engine.go,
// consumer.go). Subjects replace the teacher's per-run hierarchy with one
// subject per queue name (spec.md's Options.queue_name), since this engine
// dispatches whole tasks rather than per-step workflow events.
package broker

import (
	"context"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const subjectPrefix = "dramax.tasks"

// Config configures the JetStream connection.
type Config struct {
	URL      string
	Stream   string
	Embedded bool
}

// Broker wraps a JetStream connection used both to publish task messages
// (Scheduler, Worker Actor on requeue) and to pull-consume them (Worker
// Actor).
type Broker struct {
	opts   Config
	server *natsserver.Server
	conn   *nats.Conn
	js     nats.JetStreamContext
}

func Connect(opts Config) (*Broker, error) {
	b := &Broker{opts: opts}

	if opts.Embedded {
		srv, err := natsserver.NewServer(&natsserver.Options{Port: -1, JetStream: true})
		if err != nil {
			return nil, fmt.Errorf("start embedded nats: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(5 * time.Second) {
			return nil, fmt.Errorf("embedded nats failed to start")
		}
		b.server = srv
		b.opts.URL = srv.ClientURL()
	}

	conn, err := nats.Connect(b.opts.URL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect to nats at %s: %w", b.opts.URL, err)
	}
	b.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}
	b.js = js

	stream := opts.Stream
	if stream == "" {
		stream = "DRAMAX"
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{subjectPrefix + ".>"},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		b.Close()
		return nil, fmt.Errorf("create stream %s: %w", stream, err)
	}
	b.opts.Stream = stream

	return b, nil
}

func subject(queue string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, queue)
}

// Publish sends raw message bytes to the given queue's subject. Used by the
// Scheduler when it enqueues each task of a workflow and by the Worker Actor when a
// task comes back Deferred and must be republished (spec.md §4.4).
func (b *Broker) Publish(ctx context.Context, queue string, data []byte) error {
	_, err := b.js.Publish(subject(queue), data)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Handler processes one delivered message, told how many times (including
// this one) it has been delivered. The Worker Actor only logs this count;
// its defer backoff uses model.Message.DeferCount, since a republished
// message starts again at delivery 1.
// Returning nil acks the message; a non-nil error naks it for redelivery.
type Handler func(ctx context.Context, data []byte, delivered int) error

// TerminalHandler is invoked once a message's redelivery attempts are
// exhausted, standing in for the Failure Sink Actor's broker-level trigger
// (spec.md §4.6 "invoked after terminal delivery failure of a Worker Actor
// message"). JetStream has no such callback natively, so the Consumer
// tracks NumDelivered itself and calls this in place of a final Nak.
type TerminalHandler func(ctx context.Context, data []byte, lastErr error) error

// Consumer is a durable pull subscription on a single queue.
type Consumer struct {
	sub    *nats.Subscription
	stopCh chan struct{}
	group  *errgroup.Group
}

// Subscribe starts a durable pull consumer on queue and dispatches each
// fetched message to handler from its own goroutine, bounded by
// concurrency — the worker pool model of spec.md §5 ("N goroutines pull
// from the same durable consumer"). Once a message's delivery count
// reaches maxRedeliveries, onExhausted runs instead of another Nak and the
// message is acked regardless of its outcome, since redelivery is now
// considered final.
func (b *Broker) Subscribe(ctx context.Context, queue, durableName string, concurrency, maxRedeliveries int, handler Handler, onExhausted TerminalHandler) (*Consumer, error) {
	sub, err := b.js.PullSubscribe(
		subject(queue),
		durableName,
		nats.AckExplicit(),
		nats.ManualAck(),
		nats.MaxAckPending(concurrency*4),
		nats.MaxDeliver(maxRedeliveries),
	)
	if err != nil {
		return nil, fmt.Errorf("pull subscribe to %s: %w", queue, err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	c := &Consumer{sub: sub, stopCh: make(chan struct{}), group: group}
	for i := 0; i < concurrency; i++ {
		group.Go(func() error {
			c.fetchLoop(groupCtx, maxRedeliveries, handler, onExhausted)
			return nil
		})
	}
	return c, nil
}

// fetchLoop is one of the N bounded fetch goroutines spec.md §5 describes
// ("N goroutines pull from the same durable consumer"), launched and
// supervised through an errgroup.Group so Stop can wait for every fetch to
// finish rather than leaking a bare goroutine.
func (c *Consumer) fetchLoop(ctx context.Context, maxRedeliveries int, handler Handler, onExhausted TerminalHandler) {
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !c.sub.IsValid() {
			return
		}

		msgs, err := c.sub.Fetch(1, nats.MaxWait(5*time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			if err == nats.ErrConnectionClosed || err == nats.ErrConsumerDeleted {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			delivered := 1
			if meta, metaErr := msg.Metadata(); metaErr == nil {
				delivered = int(meta.NumDelivered)
			}

			handlerErr := handler(ctx, msg.Data, delivered)
			if handlerErr == nil {
				_ = msg.Ack()
				continue
			}

			if delivered >= maxRedeliveries && onExhausted != nil {
				_ = onExhausted(ctx, msg.Data, handlerErr)
				_ = msg.Ack()
				continue
			}

			_ = msg.Nak()
		}
	}
}

// Stop ends the consumer's fetch loops and waits for all of them to
// return. Outstanding fetches finish first.
func (c *Consumer) Stop() {
	close(c.stopCh)
	if c.sub != nil {
		_ = c.sub.Drain()
	}
	_ = c.group.Wait()
}

func (b *Broker) Close() {
	if b == nil {
		return
	}
	if b.conn != nil {
		b.conn.Drain()
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
	}
}
