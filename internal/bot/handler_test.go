package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"todolist/internal/bot/session"
	"todolist/internal/goals"
	"todolist/internal/model"
	"todolist/internal/pkg/logger"
	"todolist/internal/policy"
	"todolist/internal/store"
	"todolist/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sentMessage
	err  error
}

func (s *recordingSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sentMessage{ChatID: chatID, Text: text})
	return s.err
}

func (s *recordingSender) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.msgs, "expected a reply")
	return s.msgs[len(s.msgs)-1].Text
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type handlerFixture struct {
	db       *gorm.DB
	handler  *Handler
	sessions session.Storage
	sender   *recordingSender
}

func newHandlerFixture(t *testing.T, sessions session.Storage) *handlerFixture {
	t.Helper()
	db := storetest.NewDB(t)
	st := store.New(db)
	svc := goals.NewService(st, policy.NewEngine(st), logger.Discard())
	if sessions == nil {
		sessions = session.NewMemoryStorage()
	}
	sender := &recordingSender{}
	return &handlerFixture{
		db:       db,
		handler:  NewHandler(svc, sessions, sender, logger.Discard()),
		sessions: sessions,
		sender:   sender,
	}
}

func (f *handlerFixture) state(t *testing.T, chatID int64) session.State {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), chatID)
	require.NoError(t, err)
	return s
}

func TestHandler_CreateGoalDialogue(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx := context.Background()
	owner := storetest.User(t, f.db, "owner")
	board := storetest.Board(t, f.db, "home", owner)
	cat := storetest.Category(t, f.db, board, owner, "chores")
	const chat = int64(42)

	require.NoError(t, f.handler.Handle(ctx, chat, owner.ID, "/create"))
	assert.Equal(t, fmt.Sprintf("%s\n#%d home / chores", ReplySelectCategory, cat.ID), f.sender.last(t))
	assert.Equal(t, session.AwaitingCategory{}, f.state(t, chat))

	require.NoError(t, f.handler.Handle(ctx, chat, owner.ID, "abc"))
	assert.Equal(t, ReplyInvalidCategory, f.sender.last(t))
	assert.Equal(t, session.AwaitingCategory{}, f.state(t, chat))

	require.NoError(t, f.handler.Handle(ctx, chat, owner.ID, "9999"))
	assert.Equal(t, ReplyCategoryNotFound, f.sender.last(t))
	assert.Equal(t, session.AwaitingCategory{}, f.state(t, chat))

	require.NoError(t, f.handler.Handle(ctx, chat, owner.ID, fmt.Sprint(cat.ID)))
	assert.Equal(t, ReplySetTitle, f.sender.last(t))
	assert.Equal(t, session.AwaitingTitle{CategoryID: cat.ID}, f.state(t, chat))

	before := time.Now().Add(-time.Second)
	require.NoError(t, f.handler.Handle(ctx, chat, owner.ID, "Buy milk"))
	assert.Equal(t, session.Idle{}, f.state(t, chat))

	var goal model.Goal
	require.NoError(t, f.db.Where("title = ?", "Buy milk").First(&goal).Error)
	assert.Equal(t, fmt.Sprintf("%s #%d Buy milk", ReplyGoalCreated, goal.ID), f.sender.last(t))
	assert.Equal(t, owner.ID, goal.UserID)
	assert.Equal(t, cat.ID, goal.CategoryID)
	assert.Equal(t, model.StatusToDo, goal.Status)
	require.NotNil(t, goal.DueDate)
	assert.True(t, goal.DueDate.After(before))
}

func TestHandler_ReadOnlyCategoryDoesNotExist(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx := context.Background()
	owner := storetest.User(t, f.db, "owner")
	reader := storetest.User(t, f.db, "reader")
	board := storetest.Board(t, f.db, "home", owner)
	storetest.Participant(t, f.db, board, reader, model.RoleReader)
	cat := storetest.Category(t, f.db, board, owner, "chores")

	require.NoError(t, f.handler.Handle(ctx, 7, reader.ID, "/create"))
	assert.Equal(t, ReplyNoCategories, f.sender.last(t))
	assert.Equal(t, session.AwaitingCategory{}, f.state(t, 7))

	require.NoError(t, f.handler.Handle(ctx, 7, reader.ID, fmt.Sprint(cat.ID)))
	assert.Equal(t, ReplyCategoryNotFound, f.sender.last(t))
	assert.Equal(t, session.AwaitingCategory{}, f.state(t, 7))
}

func TestHandler_Cancel(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx := context.Background()
	u := storetest.User(t, f.db, "u")

	require.NoError(t, f.handler.Handle(ctx, 1, u.ID, "/cancel"))
	assert.Equal(t, 0, f.sender.count(), "cancel while idle is silent")

	require.NoError(t, f.sessions.Set(ctx, 1, session.AwaitingTitle{CategoryID: 3}))
	require.NoError(t, f.handler.Handle(ctx, 1, u.ID, "/cancel"))
	assert.Equal(t, ReplyCanceled, f.sender.last(t))
	assert.Equal(t, session.Idle{}, f.state(t, 1))

	require.NoError(t, f.handler.Handle(ctx, 1, u.ID, "/cancel"))
	assert.Equal(t, 1, f.sender.count())
}

func TestHandler_Goals(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx := context.Background()
	owner := storetest.User(t, f.db, "owner")

	require.NoError(t, f.handler.Handle(ctx, 1, owner.ID, "/goals"))
	assert.Equal(t, ReplyNoGoals, f.sender.last(t))

	board := storetest.Board(t, f.db, "home", owner)
	cat := storetest.Category(t, f.db, board, owner, "chores")
	g1 := storetest.Goal(t, f.db, cat, owner, "first")
	g2 := storetest.Goal(t, f.db, cat, owner, "second")

	require.NoError(t, f.handler.Handle(ctx, 1, owner.ID, "/goals"))
	assert.Equal(t, fmt.Sprintf("#%d first\n#%d second", g1.ID, g2.ID), f.sender.last(t))

	// 归档目标仍属于创建者，照常列出
	require.NoError(t, f.db.Model(&model.Goal{}).Where("id = ?", g1.ID).
		Update("status", model.StatusArchived).Error)
	require.NoError(t, f.handler.Handle(ctx, 1, owner.ID, "/goals"))
	assert.Equal(t, fmt.Sprintf("#%d first\n#%d second", g1.ID, g2.ID), f.sender.last(t))
}

func TestHandler_IdleInput(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx := context.Background()
	u := storetest.User(t, f.db, "u")

	require.NoError(t, f.handler.Handle(ctx, 1, u.ID, "hello"))
	assert.Equal(t, 0, f.sender.count(), "plain text while idle is ignored")

	require.NoError(t, f.handler.Handle(ctx, 1, u.ID, "/start"))
	assert.Equal(t, ReplyUnknownCommand, f.sender.last(t))
}

func TestHandler_EmptyTitleKeepsState(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx := context.Background()
	u := storetest.User(t, f.db, "u")
	require.NoError(t, f.sessions.Set(ctx, 1, session.AwaitingTitle{CategoryID: 3}))

	require.NoError(t, f.handler.Handle(ctx, 1, u.ID, "   "))
	assert.Equal(t, ReplyInvalidTitle, f.sender.last(t))
	assert.Equal(t, session.AwaitingTitle{CategoryID: 3}, f.state(t, 1))
}

func TestHandler_CategoryRemovedBeforeTitle(t *testing.T) {
	f := newHandlerFixture(t, nil)
	ctx := context.Background()
	owner := storetest.User(t, f.db, "owner")
	board := storetest.Board(t, f.db, "home", owner)
	cat := storetest.Category(t, f.db, board, owner, "chores")
	require.NoError(t, f.sessions.Set(ctx, 1, session.AwaitingTitle{CategoryID: cat.ID}))
	require.NoError(t, f.db.Model(&model.GoalCategory{}).Where("id = ?", cat.ID).Update("is_deleted", true).Error)

	err := f.handler.Handle(ctx, 1, owner.ID, "late goal")
	assert.Error(t, err)
	assert.Equal(t, ReplySomethingWrong, f.sender.last(t))
	assert.Equal(t, session.Idle{}, f.state(t, 1))
}

func TestHandler_CorruptSessionResets(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f := newHandlerFixture(t, session.NewRedisStorage(rdb, time.Hour))
	u := storetest.User(t, f.db, "u")

	require.NoError(t, mr.Set("todolist:bot:session:5", `{"state":"awaiting_title"}`))
	require.NoError(t, f.handler.Handle(context.Background(), 5, u.ID, "anything"))
	assert.Equal(t, ReplySomethingWrong, f.sender.last(t))
	assert.False(t, mr.Exists("todolist:bot:session:5"))
}

func TestHandler_SendFailureDoesNotBlockTransition(t *testing.T) {
	f := newHandlerFixture(t, nil)
	f.sender.err = errors.New("network down")
	u := storetest.User(t, f.db, "u")

	require.NoError(t, f.handler.Handle(context.Background(), 1, u.ID, "/create"))
	assert.Equal(t, session.AwaitingCategory{}, f.state(t, 1))
}
