package intake

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kal997/graph-notification-relay/internal/dispatch"
	"github.com/kal997/graph-notification-relay/internal/models"
	"github.com/kal997/graph-notification-relay/internal/subscription"
)

// Enqueuer accepts notifications for background dispatch without blocking
type Enqueuer interface {
	Enqueue(n models.ChangeNotification) error
}

// Recorder receives per-batch counts, fire-and-forget
type Recorder interface {
	ObserveBatch(result BatchResult)
}

// BatchResult summarizes what intake did with one delivery
type BatchResult struct {
	BatchID     string
	Accepted    int
	Rejected    int // clientState mismatch
	Malformed   int
	Dropped     int // queue saturated or closed
	InvalidBody bool
}

// Total is the number of elements seen in the batch
func (r BatchResult) Total() int {
	return r.Accepted + r.Rejected + r.Malformed + r.Dropped
}

// Intake validates delivered batches and enqueues accepted notifications.
// It holds no per-request state and is safe for concurrent use.
type Intake struct {
	queue    Enqueuer
	secrets  subscription.Source
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func New(queue Enqueuer, secrets subscription.Source, recorder Recorder, logger *slog.Logger) *Intake {
	if secrets == nil {
		secrets = subscription.Chain{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		queue:    queue,
		secrets:  secrets,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Process handles one delivery body. It never fails: undecodable bodies are
// reported through InvalidBody and bad elements are counted and dropped.
func (in *Intake) Process(body []byte) BatchResult {
	result := BatchResult{BatchID: uuid.NewString()}
	log := in.logger.With("batch_id", result.BatchID)

	batch, err := models.DecodeBatch(body)
	if err != nil {
		result.InvalidBody = true
		log.Warn("ignoring undecodable notification body", "error", err, "bytes", len(body))
		in.record(result)
		return result
	}

	receivedAt := in.now().UTC()
	for i, raw := range batch.Value {
		n, err := models.DecodeNotification(raw)
		if err != nil {
			result.Malformed++
			log.Info("dropping malformed notification", "index", i, "error", err)
			continue
		}

		if !in.authentic(n) {
			result.Rejected++
			log.Warn("dropping notification with mismatched clientState, possible spoofing",
				"index", i,
				"subscription_id", n.SubscriptionID,
				"resource", n.Resource)
			continue
		}

		n.ReceiptID = uuid.NewString()
		n.ReceivedAt = receivedAt

		if err := in.queue.Enqueue(n); err != nil {
			result.Dropped++
			if errors.Is(err, dispatch.ErrQueueFull) {
				log.Warn("dispatch queue saturated, dropping notification",
					"subscription_id", n.SubscriptionID, "resource", n.Resource)
			} else {
				log.Warn("failed to enqueue notification", "resource", n.Resource, "error", err)
			}
			continue
		}
		result.Accepted++
	}

	log.Debug("notification batch processed",
		"accepted", result.Accepted,
		"rejected", result.Rejected,
		"malformed", result.Malformed,
		"dropped", result.Dropped)

	in.record(result)
	return result
}

// authentic compares clientState in constant time when a secret is configured
func (in *Intake) authentic(n models.ChangeNotification) bool {
	expected, ok := in.secrets.ClientState(n.SubscriptionID)
	if !ok {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(n.ClientState), []byte(expected)) == 1
}

func (in *Intake) record(result BatchResult) {
	if in.recorder != nil {
		in.recorder.ObserveBatch(result)
	}
}
