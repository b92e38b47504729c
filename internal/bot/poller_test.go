package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"todolist/internal/bot/session"
	"todolist/internal/goals"
	"todolist/internal/model"
	"todolist/internal/pkg/dedup"
	"todolist/internal/pkg/logger"
	"todolist/internal/pkg/tg"
	"todolist/internal/policy"
	"todolist/internal/store"
	"todolist/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	updates []tg.Update
	err     error
}

// fakeTransport 按顺序返回预设的拉取结果，耗尽后调用 onDrained。
type fakeTransport struct {
	recordingSender
	mu        sync.Mutex
	results   []fetchResult
	offsets   []int64
	onDrained func()
}

func (f *fakeTransport) FetchUpdates(ctx context.Context, offset int64) ([]tg.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.results) == 0 {
		f.mu.Unlock()
		if f.onDrained != nil {
			f.onDrained()
		}
		return nil, ctx.Err()
	}
	r := f.results[0]
	f.results = f.results[1:]
	f.mu.Unlock()
	return r.updates, r.err
}

func (f *fakeTransport) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offsets)
}

type recordingHandler struct {
	texts []string
	panic string
}

func (h *recordingHandler) Handle(_ context.Context, _ int64, _ uint, text string) error {
	if h.panic != "" && text == h.panic {
		panic("handler exploded")
	}
	h.texts = append(h.texts, text)
	if text == "fail" {
		return errors.New("handler failed")
	}
	return nil
}

func linkedIdentity(t *testing.T, st *store.Store, chatID int64, user model.User) {
	t.Helper()
	ctx := context.Background()
	identity, err := st.ResolveChat(ctx, chatID, "someone")
	require.NoError(t, err)
	code, err := st.IssueVerificationCode(ctx, identity)
	require.NoError(t, err)
	_, err = st.LinkChat(ctx, code, user.ID)
	require.NoError(t, err)
}

func TestPoller_UnverifiedThenLinkedEndToEnd(t *testing.T) {
	db := storetest.NewDB(t)
	st := store.New(db)
	svc := goals.NewService(st, policy.NewEngine(st), logger.Discard())
	owner := storetest.User(t, db, "owner")
	board := storetest.Board(t, db, "home", owner)
	cat := storetest.Category(t, db, board, owner, "chores")
	ctx := context.Background()

	transport := &fakeTransport{results: []fetchResult{
		{updates: []tg.Update{{ID: 10, ChatID: 77, Username: "tg_owner", Text: "hi"}}},
	}}
	handler := NewHandler(svc, session.NewMemoryStorage(), transport, logger.Discard())
	p := NewPoller(transport, st, handler, logger.Discard(), PollerOptions{})

	require.NoError(t, p.PollOnce(ctx))
	assert.Equal(t, int64(11), p.Offset())
	reply := transport.last(t)
	require.True(t, strings.HasPrefix(reply, ReplyVerification+" "), reply)
	code := strings.TrimPrefix(reply, ReplyVerification+" ")

	_, err := svc.LinkChat(ctx, owner.ID, code)
	require.NoError(t, err)

	transport.results = []fetchResult{{updates: []tg.Update{
		{ID: 11, ChatID: 77, Text: "/create"},
		{ID: 12, ChatID: 77, Text: fmt.Sprint(cat.ID)},
		{ID: 13, ChatID: 77, Text: "Buy milk"},
	}}}
	require.NoError(t, p.PollOnce(ctx))
	assert.Equal(t, int64(14), p.Offset())

	var goal model.Goal
	require.NoError(t, db.Where("title = ?", "Buy milk").First(&goal).Error)
	assert.Equal(t, owner.ID, goal.UserID)
	assert.Equal(t, cat.ID, goal.CategoryID)
	assert.Equal(t, fmt.Sprintf("%s #%d Buy milk", ReplyGoalCreated, goal.ID), transport.last(t))
}

func TestPoller_PanicAndErrorsAdvanceCursor(t *testing.T) {
	db := storetest.NewDB(t)
	st := store.New(db)
	u := storetest.User(t, db, "u")
	linkedIdentity(t, st, 5, u)

	transport := &fakeTransport{results: []fetchResult{{updates: []tg.Update{
		{ID: 1, ChatID: 5, Text: "boom"},
		{ID: 2, ChatID: 5, Text: "fail"},
		{ID: 3, ChatID: 0},
		{ID: 4, ChatID: 5, Text: "after"},
	}}}}
	h := &recordingHandler{panic: "boom"}
	p := NewPoller(transport, st, h, logger.Discard(), PollerOptions{})

	require.NoError(t, p.PollOnce(context.Background()))
	assert.Equal(t, int64(5), p.Offset())
	assert.Equal(t, []string{"fail", "after"}, h.texts)
}

func TestPoller_DuplicateDeliverySkipped(t *testing.T) {
	db := storetest.NewDB(t)
	st := store.New(db)
	u := storetest.User(t, db, "u")
	linkedIdentity(t, st, 5, u)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	guard := dedup.NewUpdateGuard(rdb, time.Hour)

	batch := []tg.Update{{ID: 8, ChatID: 5, Text: "once"}}
	h := &recordingHandler{}

	first := NewPoller(&fakeTransport{results: []fetchResult{{updates: batch}}}, st, h, logger.Discard(), PollerOptions{Guard: guard})
	require.NoError(t, first.PollOnce(context.Background()))

	// 重启后游标归零，平台重新投递同一条消息
	second := NewPoller(&fakeTransport{results: []fetchResult{{updates: batch}}}, st, h, logger.Discard(), PollerOptions{Guard: guard})
	require.NoError(t, second.PollOnce(context.Background()))

	assert.Equal(t, []string{"once"}, h.texts)
	assert.Equal(t, int64(9), second.Offset())
}

func TestPoller_RunGivesUpAfterMaxFailures(t *testing.T) {
	fetchErr := fmt.Errorf("%w: status 502", tg.ErrTransport)
	transport := &fakeTransport{results: []fetchResult{
		{err: fetchErr}, {err: fetchErr}, {err: fetchErr}, {err: fetchErr},
	}}
	p := NewPoller(transport, nil, &recordingHandler{}, logger.Discard(), PollerOptions{
		MaxFailures:  2,
		RetryBackoff: time.Millisecond,
	})

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, tg.ErrTransport)
	assert.Equal(t, 3, transport.fetchCount())
}

func TestPoller_RunRecoversAndStopsOnCancel(t *testing.T) {
	db := storetest.NewDB(t)
	st := store.New(db)
	u := storetest.User(t, db, "u")
	linkedIdentity(t, st, 5, u)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport := &fakeTransport{
		results: []fetchResult{
			{err: tg.ErrTransport},
			{updates: []tg.Update{{ID: 20, ChatID: 5, Text: "hello"}}},
		},
		onDrained: cancel,
	}
	h := &recordingHandler{}
	p := NewPoller(transport, st, h, logger.Discard(), PollerOptions{
		MaxFailures:  1,
		RetryBackoff: time.Millisecond,
	})

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []string{"hello"}, h.texts)
	assert.Equal(t, int64(21), p.Offset())
}
