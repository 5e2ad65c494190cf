package chat

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sink receives completed exchanges for persistence. The direct
// database sink and the queue publisher both satisfy it.
type Sink interface {
	Persist(ctx context.Context, m *Message) error
}

// DBSink writes exchanges straight to the messages table.
type DBSink struct {
	repo *Repo
}

func NewDBSink(repo *Repo) *DBSink { return &DBSink{repo: repo} }

func (s *DBSink) Persist(ctx context.Context, m *Message) error {
	return s.repo.Insert(ctx, m)
}

// Recorder persists exchanges off the streaming path. Enqueue never
// blocks a stream: when the buffer is full the record is dropped and
// logged rather than stalling a client response.
type Recorder struct {
	sink  Sink
	queue chan *Message
	done  chan struct{}
	once  sync.Once
}

func NewRecorder(sink Sink, depth int) *Recorder {
	if depth <= 0 {
		depth = 256
	}
	r := &Recorder{
		sink:  sink,
		queue: make(chan *Message, depth),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for m := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.sink.Persist(ctx, m); err != nil {
			log.WithFields(log.Fields{
				"conversation": m.ConversationID,
				"user":         m.UserID,
			}).Errorf("persist exchange: %v", err)
		}
		cancel()
	}
}

// Enqueue submits a completed exchange. Exchanges with an empty answer
// are skipped: a failed stream leaves no record.
func (r *Recorder) Enqueue(m *Message) {
	if m == nil || m.AnswerContent == "" {
		return
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	select {
	case r.queue <- m:
	default:
		log.WithFields(log.Fields{
			"conversation": m.ConversationID,
			"user":         m.UserID,
		}).Warn("recorder queue full, dropping exchange record")
	}
}

// Close stops intake and drains queued records.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.queue) })
	<-r.done
}
