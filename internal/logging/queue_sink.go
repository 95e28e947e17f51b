package logging

import (
	"context"
	"encoding/json"
	"time"

	"textenhancer/internal/queue"
)

// QueueSink enqueues AuditRecords onto a queue.Queue (memory or Redis
// backed) and periodically drains batches to an S3Writer. A ticker-loop
// worker owns the drain, the same shape as a billing batch worker: pull a
// bounded batch, flush it, back off on failure.
type QueueSink struct {
	q        queue.Queue
	s3       *S3Writer
	batch    int
	interval time.Duration
	log      *Logger

	stopCh   chan struct{}
	stopped  chan struct{}
}

// NewQueueSink wires q to s3. s3 may be nil, in which case batches are
// dequeued and discarded (useful when only buffering, not archiving, is
// desired).
func NewQueueSink(q queue.Queue, s3 *S3Writer, batchSize int, flushInterval time.Duration) *QueueSink {
	return &QueueSink{
		q:        q,
		s3:       s3,
		batch:    batchSize,
		interval: flushInterval,
		log:      New("audit-queue-sink"),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Enqueue implements Sink.
func (s *QueueSink) Enqueue(rec *AuditRecord) error {
	return s.q.Enqueue(context.Background(), rec)
}

// Start launches the drain loop; call Stop to shut it down.
func (s *QueueSink) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *QueueSink) run(ctx context.Context) {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.drainOnce(ctx); err != nil {
				s.log.Error("audit batch drain failed", "error", err)
				time.Sleep(backoff)
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
		}
	}
}

func (s *QueueSink) drainOnce(ctx context.Context) error {
	items, err := s.q.DequeueWithTimeout(ctx, s.batch, 5*time.Second)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	records := make([]*AuditRecord, 0, len(items))
	for _, raw := range items {
		rec, err := decodeAuditRecord(raw)
		if err != nil {
			s.log.Warn("dropping malformed audit record", "error", err)
			continue
		}
		records = append(records, rec)
	}

	if s.s3 == nil || len(records) == 0 {
		return nil
	}

	_, err = s.s3.WriteBatch(ctx, records)
	return err
}

func decodeAuditRecord(raw interface{}) (*AuditRecord, error) {
	switch v := raw.(type) {
	case *AuditRecord:
		return v, nil
	case AuditRecord:
		return &v, nil
	case json.RawMessage:
		var rec AuditRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	case []byte:
		var rec AuditRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var rec AuditRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	}
}

// Stop halts the drain loop and waits for it to exit.
func (s *QueueSink) Stop() {
	close(s.stopCh)
	<-s.stopped
}
