package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
	"github.com/vishal065/BookBazaar-masterji/pkg/queue"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

func TestOrderConfirmationRendersLines(t *testing.T) {
	order := domain.Order{ID: "order-1", TotalAmount: decimal.RequireFromString("20")}
	lines := []domain.OrderLine{{
		OrderItem: domain.OrderItem{BookID: "b1", Quantity: 2, Price: decimal.RequireFromString("10")},
		Title:     "Go <Patterns>",
	}}

	msg, err := OrderConfirmation("reader@example.com", order, lines)
	require.NoError(t, err)
	assert.Equal(t, "Your BookBazaar order order-1 is confirmed", msg.Subject)
	assert.Equal(t, "order-1", msg.OrderID)
	assert.Contains(t, msg.HTML, "Go &lt;Patterns&gt;")
	assert.Contains(t, msg.HTML, "10.00")
	assert.Contains(t, msg.HTML, "Total: 20.00")
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", FromName: "BookBazaar", FromEmail: "shop@example.com"})
	require.NoError(t, err)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, body []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, body
		return nil
	}
	require.NoError(t, m.Send(context.Background(), Message{To: "reader@example.com", Subject: "Hello", HTML: "<p>hi</p>"}))

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "shop@example.com", gotFrom)
	assert.Equal(t, []string{"reader@example.com"}, gotTo)
	body := string(gotBody)
	assert.Contains(t, body, "Subject: Hello\r\n")
	assert.Contains(t, body, `Content-Type: text/html; charset="utf-8"`)
	assert.True(t, strings.HasSuffix(body, "<p>hi</p>"))
}

func TestSMTPMailerRejectsBadConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{FromEmail: "shop@example.com"})
	assert.Error(t, err)
	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", FromEmail: "not-an-address"})
	assert.Error(t, err)
}

func TestDispatcherDirectSend(t *testing.T) {
	mailer := &recordingMailer{}
	var outcomes []string
	var mu sync.Mutex
	d := NewDispatcher(mailer, nil, func(o string) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, Message{To: "reader@example.com", Subject: "s", OrderID: "o1"})
	cancel()
	d.Wait()

	sent := mailer.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "o1", sent[0].OrderID)
	mu.Lock()
	assert.Equal(t, []string{queue.StatusSent}, outcomes)
	mu.Unlock()
}

func TestDispatcherDirectSendFailureIsSwallowed(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("down")}
	var failed int
	d := NewDispatcher(mailer, nil, func(o string) {
		if o == queue.StatusFailed {
			failed++
		}
	})
	d.Dispatch(context.Background(), Message{To: "reader@example.com"})
	d.Wait()
	assert.Equal(t, 1, failed)
}

func TestDispatcherQueuedDelivery(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := queue.NewMailQueue(client, queue.MailQueueConfig{Stream: "test:mail", Block: 20 * time.Millisecond})
	require.NoError(t, err)

	mailer := &recordingMailer{}
	d := NewDispatcher(mailer, q, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, 1) }()

	d.Dispatch(context.Background(), Message{To: "reader@example.com", Subject: "queued", HTML: "<p>x</p>", OrderID: "o2"})

	require.Eventually(t, func() bool { return len(mailer.messages()) == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	got := mailer.messages()[0]
	assert.Equal(t, "queued", got.Subject)
	assert.Equal(t, "o2", got.OrderID)
}
