package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/qianniu/llmbot/internal/chat"
)

// Consumer drains the exchange-record queue and persists each record
// through the sink. Deliveries are acked only after a successful
// write; failures requeue once and then drop to avoid poison loops.
type Consumer struct {
	url      string
	queue    string
	sink     chat.Sink
	prefetch int
	workers  int
}

func NewConsumer(url, queue string, sink chat.Sink, workers int) *Consumer {
	if workers <= 0 {
		workers = 4
	}
	return &Consumer{
		url:      url,
		queue:    queue,
		sink:     sink,
		prefetch: workers * 2,
		workers:  workers,
	}
}

// Run consumes until ctx is cancelled or the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				c.handle(ctx, d)
			}
		}()
	}

	<-ctx.Done()
	ch.Close()
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var m chat.Message
	if err := json.Unmarshal(d.Body, &m); err != nil {
		log.Errorf("decode exchange record: %v", err)
		d.Nack(false, false)
		return
	}
	if err := c.sink.Persist(ctx, &m); err != nil {
		log.WithField("conversation", m.ConversationID).Errorf("persist exchange record: %v", err)
		d.Nack(false, !d.Redelivered)
		return
	}
	d.Ack(false)
}
