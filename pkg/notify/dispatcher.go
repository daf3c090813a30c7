package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vishal065/BookBazaar-masterji/pkg/queue"
)

const sendTimeout = 30 * time.Second

// Dispatcher hands messages off without blocking the caller. With a queue the
// message is enqueued and delivered by Run; without one it is sent from a
// detached goroutine. Delivery failures are logged only.
type Dispatcher struct {
	mailer  Mailer
	queue   *queue.MailQueue
	observe func(outcome string)
	wg      sync.WaitGroup
}

// NewDispatcher builds a dispatcher. q may be nil.
func NewDispatcher(mailer Mailer, q *queue.MailQueue, observe func(outcome string)) *Dispatcher {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Dispatcher{mailer: mailer, queue: q, observe: observe}
}

// Dispatch schedules msg for delivery. It never fails the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	ctx = context.WithoutCancel(ctx)
	logger := slog.Default().With("order_id", msg.OrderID)
	if d.queue != nil {
		enqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		job, err := d.queue.Enqueue(enqCtx, queue.MailJob{
			OrderID: msg.OrderID,
			To:      msg.To,
			Subject: msg.Subject,
			HTML:    msg.HTML,
		})
		if err == nil {
			logger.Info("mail_enqueued", "job_id", job.ID)
			return
		}
		logger.Warn("mail_enqueue_failed", "err", err)
		// fall through to a direct send
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := d.mailer.Send(sendCtx, msg); err != nil {
			logger.Error("mail_send_failed", "err", err)
			d.report(queue.StatusFailed)
			return
		}
		d.report(queue.StatusSent)
	}()
}

// Run consumes queued mails until ctx is done, then waits for direct sends in flight.
func (d *Dispatcher) Run(ctx context.Context, concurrency int) error {
	defer d.wg.Wait()
	if d.queue == nil {
		<-ctx.Done()
		return nil
	}
	return d.queue.Run(ctx, concurrency, d.deliver)
}

// Wait blocks until every direct send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, job queue.MailJob) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return d.mailer.Send(sendCtx, Message{
		To:      job.To,
		Subject: job.Subject,
		HTML:    job.HTML,
		OrderID: job.OrderID,
	})
}

func (d *Dispatcher) report(outcome string) {
	if d.observe != nil {
		d.observe(outcome)
	}
}
