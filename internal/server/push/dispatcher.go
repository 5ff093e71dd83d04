package push

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/dmitrijs2005/whisper/internal/server/models"
)

// Deliverer performs one push delivery.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, msg *models.Message)
}

type job struct {
	userID int64
	msg    *models.Message
}

// Dispatcher decouples callers from push latency: Notify only enqueues and a
// fixed pool of workers started by Run performs the deliveries.
type Dispatcher struct {
	deliverer Deliverer
	workers   int
	queue     chan job
	logger    logging.Logger
}

func NewDispatcher(d Deliverer, workers, queueSize int, logger logging.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{
		deliverer: d,
		workers:   workers,
		queue:     make(chan job, queueSize),
		logger:    logger,
	}
}

// Notify never blocks. When the queue is full the notification is dropped.
func (d *Dispatcher) Notify(ctx context.Context, userID int64, msg *models.Message) {
	select {
	case d.queue <- job{userID: userID, msg: msg}:
	default:
		d.logger.Warn(ctx, "push queue full, notification dropped", "user_id", userID, "message_id", msg.ID)
	}
}

// Run serves the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-d.queue:
					d.deliverer.Deliver(ctx, j.userID, j.msg)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}
