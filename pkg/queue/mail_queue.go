package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vishal065/BookBazaar-masterji/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
	// StatusRetry is reported to observers only; the stored status goes back to queued.
	StatusRetry = "retry"
)

// DefaultStream is the stream carrying order confirmation mails.
const DefaultStream = "bookbazaar:mail"

// MailJob is one outgoing mail plus its delivery bookkeeping.
type MailJob struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"orderId,omitempty"`
	To           string    `json:"to"`
	Subject      string    `json:"subject"`
	HTML         string    `json:"html"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler delivers one job. A non-nil error schedules a retry until attempts run out.
type Handler func(context.Context, MailJob) error

// MailQueue is a Redis stream with a consumer group. Messages left pending by a
// crashed consumer are reclaimed after ClaimIdle.
type MailQueue struct {
	client       redis.UniversalClient
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	observe      func(status string)

	groupOnce sync.Once
	groupErr  error
}

type MailQueueConfig struct {
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
	// Observe, when set, is called with sent, retry or failed after each delivery attempt.
	Observe func(status string)
}

// NewMailQueue builds a queue on a shared Redis client.
func NewMailQueue(client redis.UniversalClient, cfg MailQueueConfig) (*MailQueue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = DefaultStream
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "mailers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	q := &MailQueue{
		client:       client,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       positiveOr(cfg.JobTTL, 24*time.Hour),
		maxRetries:   cfg.MaxRetries,
		block:        positiveOr(cfg.Block, 5*time.Second),
		claimIdle:    positiveOr(cfg.ClaimIdle, 2*time.Minute),
		retryDelay:   positiveOr(cfg.RetryDelay, 2*time.Second),
		maxLen:       cfg.MaxLen,
		readCount:    cfg.ReadCount,
		claimCount:   cfg.ClaimCount,
		observe:      cfg.Observe,
	}
	if q.maxRetries <= 0 {
		q.maxRetries = 3
	}
	if q.maxLen <= 0 {
		q.maxLen = 10000
	}
	if q.readCount <= 0 {
		q.readCount = 10
	}
	if q.claimCount <= 0 {
		q.claimCount = 10
	}
	return q, nil
}

func positiveOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Enqueue stores the job status and appends the job to the stream.
func (q *MailQueue) Enqueue(ctx context.Context, job MailJob) (MailJob, error) {
	job.To = strings.TrimSpace(job.To)
	if job.To == "" {
		return MailJob{}, errors.New("mail recipient required")
	}
	now := time.Now().UTC()
	job.ID = util.NewID()
	job.Status = StatusQueued
	job.Attempts = 0
	job.ErrorMessage = ""
	job.CreatedAt = now
	job.UpdatedAt = now
	if err := q.writeStatus(ctx, job); err != nil {
		return MailJob{}, err
	}
	if err := q.client.XAdd(ctx, q.addArgs(job)).Err(); err != nil {
		return MailJob{}, fmt.Errorf("enqueue mail: %w", err)
	}
	return job, nil
}

func (q *MailQueue) addArgs(job MailJob) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":   job.ID,
			"order_id": job.OrderID,
			"to":       job.To,
			"subject":  job.Subject,
			"html":     job.HTML,
		},
	}
}

// GetJob reads the stored status of a job.
func (q *MailQueue) GetJob(ctx context.Context, jobID string) (MailJob, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return MailJob{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return MailJob{}, false, err
	}
	if len(data) == 0 {
		return MailJob{}, false, nil
	}
	return decodeJobStatus(jobID, data), true, nil
}

// Run consumes the stream with concurrency consumers until ctx is done.
func (q *MailQueue) Run(ctx context.Context, concurrency int, handler Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.consumeLoop(ctx, consumer, handler)
		}()
	}
	wg.Wait()
	return nil
}

func (q *MailQueue) ensureGroup(ctx context.Context) error {
	q.groupOnce.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			q.groupErr = fmt.Errorf("create consumer group: %w", err)
		}
	})
	return q.groupErr
}

func (q *MailQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	logger := slog.Default().With("stream", q.stream, "consumer", consumer)
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := q.claimPending(ctx, consumer)
		if err != nil && ctx.Err() == nil {
			logger.Warn("mail_queue_claim_failed", "err", err)
		}
		for _, msg := range msgs {
			q.handleMessage(ctx, msg, handler)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				logger.Warn("mail_queue_read_failed", "err", err)
				sleepCtx(ctx, time.Second)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *MailQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

func messageJob(msg redis.XMessage) MailJob {
	str := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}
	return MailJob{
		ID:      str("job_id"),
		OrderID: str("order_id"),
		To:      str("to"),
		Subject: str("subject"),
		HTML:    str("html"),
	}
}

func (q *MailQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	payload := messageJob(msg)
	if payload.ID == "" || payload.To == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.markProcessing(ctx, payload)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	err = handler(ctx, job)
	if err == nil {
		_ = q.mark(ctx, job, StatusSent, "")
		q.ackAndDel(ctx, msg.ID)
		q.report(StatusSent)
		return
	}
	logger := slog.Default().With("job_id", job.ID, "order_id", job.OrderID, "attempts", job.Attempts)
	if job.Attempts >= q.maxRetries {
		logger.Error("mail_job_failed", "err", err)
		_ = q.mark(ctx, job, StatusFailed, err.Error())
		q.ackAndDel(ctx, msg.ID)
		q.report(StatusFailed)
		return
	}
	logger.Warn("mail_job_retry", "err", err)
	_ = q.mark(ctx, job, StatusQueued, err.Error())
	q.report(StatusRetry)
	if !sleepCtx(ctx, q.retryDelay) {
		return
	}
	_ = q.requeueAndAck(ctx, msg.ID, job)
}

func (q *MailQueue) report(status string) {
	if q.observe != nil {
		q.observe(status)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (q *MailQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

// requeueAndAck appends a copy of the job and drops the original in one MULTI.
// On failure the original stays pending and is reclaimed later.
func (q *MailQueue) requeueAndAck(ctx context.Context, msgID string, job MailJob) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, q.addArgs(job))
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *MailQueue) markProcessing(ctx context.Context, payload MailJob) (MailJob, error) {
	job, found, err := q.GetJob(ctx, payload.ID)
	if err != nil {
		return MailJob{}, err
	}
	if !found {
		job = MailJob{ID: payload.ID}
	}
	job.OrderID = payload.OrderID
	job.To = payload.To
	job.Subject = payload.Subject
	job.HTML = payload.HTML
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return MailJob{}, err
	}
	return job, nil
}

func (q *MailQueue) mark(ctx context.Context, job MailJob, status, errMsg string) error {
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

// writeStatus keeps bookkeeping only; the mail body lives in the stream message.
func (q *MailQueue) writeStatus(ctx context.Context, job MailJob) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":        job.ID,
		"orderId":   job.OrderID,
		"to":        job.To,
		"subject":   job.Subject,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, key, payload)
	pipe.Expire(ctx, key, q.jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *MailQueue) jobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", q.stream, jobID)
}

func decodeJobStatus(jobID string, data map[string]string) MailJob {
	job := MailJob{
		ID:           jobID,
		OrderID:      data["orderId"],
		To:           data["to"],
		Subject:      data["subject"],
		Status:       data["status"],
		ErrorMessage: data["error"],
	}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		job.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		job.UpdatedAt = t
	}
	return job
}
