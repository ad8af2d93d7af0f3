// Package queue moves scan and cleanup jobs between the HTTP process and the
// worker pool over NATS JetStream. Delivery is durable and at-least-once;
// the payload carries identifiers only, all durable state lives in the
// FileRecord.
package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	streamName     = "file-jobs"
	SubjectScan    = "jobs.scan"
	SubjectCleanup = "jobs.cleanup"

	// One initial delivery plus three retries; after that the job is
	// abandoned and the record stays in whatever state was last committed.
	maxDeliveries = 4
	retryDelay    = 60 * time.Second
)

// ScanJob asks a worker to drive one file through the scan state machine.
type ScanJob struct {
	FileID  string `json:"file_id"`
	OwnerID string `json:"owner_id"`
}

// CleanupJob asks a worker to run retention cleanup with the given age.
type CleanupJob struct {
	Days int `json:"days"`
}

// Publisher is the enqueue-side contract consumed by the upload coordinator.
type Publisher interface {
	EnqueueScan(ctx context.Context, fileID, ownerID string) error
	EnqueueCleanup(ctx context.Context, days int) error
}

// Queue wraps a NATS connection with a JetStream context and the job stream.
type Queue struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials NATS, initializes JetStream and ensures the job stream
// exists (idempotent).
func Connect(url string) (*Queue, error) {
	opts := []nats.Option{
		nats.Name("fileguard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[NATS] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	q := &Queue{nc: nc, js: js}
	if err := q.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	log.Println("[NATS] connected and JetStream initialized")
	return q, nil
}

func (q *Queue) ensureStream() error {
	if _, err := q.js.StreamInfo(streamName); err == nil {
		return nil
	}
	_, err := q.js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"jobs.*"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}

func (q *Queue) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = q.js.Publish(subject, data, nats.MsgId(uuid.New().String()))
	if err != nil {
		log.Printf("[NATS] publish failed subject=%s err=%v", subject, err)
	}
	return err
}

func (q *Queue) EnqueueScan(ctx context.Context, fileID, ownerID string) error {
	return q.publish(SubjectScan, ScanJob{FileID: fileID, OwnerID: ownerID})
}

func (q *Queue) EnqueueCleanup(ctx context.Context, days int) error {
	return q.publish(SubjectCleanup, CleanupJob{Days: days})
}

// ConsumeScans starts a durable, manual-ack consumer for scan jobs. Handler
// errors are retried with a fixed delay up to the delivery cap, then the
// message is terminated.
func (q *Queue) ConsumeScans(durable string, handler func(ctx context.Context, job ScanJob) error) (*nats.Subscription, error) {
	return q.consume(SubjectScan, durable, func(ctx context.Context, data []byte) error {
		var job ScanJob
		if err := json.Unmarshal(data, &job); err != nil {
			return errBadPayload{err}
		}
		return handler(ctx, job)
	})
}

// ConsumeCleanups starts a durable, manual-ack consumer for cleanup jobs.
func (q *Queue) ConsumeCleanups(durable string, handler func(ctx context.Context, job CleanupJob) error) (*nats.Subscription, error) {
	return q.consume(SubjectCleanup, durable, func(ctx context.Context, data []byte) error {
		var job CleanupJob
		if err := json.Unmarshal(data, &job); err != nil {
			return errBadPayload{err}
		}
		return handler(ctx, job)
	})
}

type errBadPayload struct{ err error }

func (e errBadPayload) Error() string { return "invalid job payload: " + e.err.Error() }

func (q *Queue) consume(subject, durable string, handle func(ctx context.Context, data []byte) error) (*nats.Subscription, error) {
	sub, err := q.js.Subscribe(subject, func(msg *nats.Msg) {
		err := handle(context.Background(), msg.Data)
		if err == nil {
			_ = msg.Ack()
			return
		}
		if _, ok := err.(errBadPayload); ok {
			log.Printf("[NATS] dropping %s message: %v", subject, err)
			_ = msg.Term()
			return
		}

		meta, metaErr := msg.Metadata()
		if metaErr == nil && meta.NumDelivered >= maxDeliveries {
			log.Printf("[NATS] abandoning %s job after %d deliveries: %v", subject, meta.NumDelivered, err)
			_ = msg.Term()
			return
		}
		log.Printf("[NATS] %s job failed, retrying in %s: %v", subject, retryDelay, err)
		_ = msg.NakWithDelay(retryDelay)
	}, nats.Durable(durable), nats.ManualAck(), nats.AckWait(10*time.Minute), nats.MaxDeliver(maxDeliveries))
	if err != nil {
		return nil, err
	}
	log.Printf("[NATS] subscribed subject=%s durable=%s", subject, durable)
	return sub, nil
}

func (q *Queue) Close() {
	if q.nc != nil && !q.nc.IsClosed() {
		q.nc.Close()
	}
}

var _ Publisher = (*Queue)(nil)
