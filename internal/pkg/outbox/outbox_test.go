package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"todolist/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mu   sync.Mutex
	sent []Message
	fn   func(chatID int64, text string) error
}

func (m *mockSender) SendMessage(_ context.Context, chatID int64, text string) error {
	if m.fn != nil {
		if err := m.fn(chatID, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Message{ChatID: chatID, Text: text})
	return nil
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestOutbox_DeliversMessages(t *testing.T) {
	sender := &mockSender{}
	o := New(logger.Discard(), sender, 2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	for i := int64(1); i <= 5; i++ {
		require.True(t, o.Enqueue(Message{ChatID: i, Text: "[verification_complete]"}))
	}

	assert.Eventually(t, func() bool { return sender.count() == 5 }, time.Second, 10*time.Millisecond)
	require.NoError(t, o.Shutdown(time.Second))
	assert.Equal(t, int64(5), o.Stats().Sent)
}

func TestOutbox_FailuresAndPanicsDoNotStopWorkers(t *testing.T) {
	sender := &mockSender{fn: func(chatID int64, _ string) error {
		switch chatID {
		case 1:
			return errors.New("chat not found")
		case 2:
			panic("transport exploded")
		}
		return nil
	}}
	o := New(logger.Discard(), sender, 1, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	o.Enqueue(Message{ChatID: 1, Text: "a"})
	o.Enqueue(Message{ChatID: 2, Text: "b"})
	o.Enqueue(Message{ChatID: 3, Text: "c"})

	require.NoError(t, o.Shutdown(time.Second))
	stats := o.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Panics)
	assert.Equal(t, int64(1), stats.Sent)
}

func TestOutbox_DropsWhenFullOrClosed(t *testing.T) {
	o := New(logger.Discard(), &mockSender{}, 1, 1)

	assert.True(t, o.Enqueue(Message{ChatID: 1}))
	assert.False(t, o.Enqueue(Message{ChatID: 2}), "capacity 1 without workers")

	o.Start(context.Background())
	require.NoError(t, o.Shutdown(time.Second))
	assert.False(t, o.Enqueue(Message{ChatID: 3}))
	assert.Equal(t, int64(2), o.Stats().Dropped)
}
