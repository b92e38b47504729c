package goals

import (
	"context"
	"testing"

	"todolist/internal/model"
	"todolist/internal/pkg/logger"
	"todolist/internal/policy"
	"todolist/internal/store"
	"todolist/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := storetest.NewDB(t)
	st := store.New(db)
	return NewService(st, policy.NewEngine(st), logger.Discard()), db
}

func TestCreateBoard_AddsOwnerParticipant(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	u := storetest.User(t, db, "owner")

	board, err := svc.CreateBoard(ctx, u.ID, "  test_board ")
	require.NoError(t, err)
	assert.Equal(t, "test_board", board.Title)

	var p model.BoardParticipant
	require.NoError(t, db.Where("board_id = ? AND user_id = ?", board.ID, u.ID).First(&p).Error)
	assert.Equal(t, model.RoleOwner, p.Role)

	_, err = svc.CreateBoard(ctx, u.ID, "   ")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReader_CannotWriteButCanRead(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	owner := storetest.User(t, db, "owner")
	reader := storetest.User(t, db, "reader")
	board := storetest.Board(t, db, "home", owner)
	storetest.Participant(t, db, board, reader, model.RoleReader)
	cat := storetest.Category(t, db, board, owner, "chores")
	goal := storetest.Goal(t, db, cat, owner, "vacuum")

	_, err := svc.CreateCategory(ctx, reader.ID, CategoryInput{BoardID: board.ID, Title: "mine"})
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	_, err = svc.CreateGoal(ctx, reader.ID, GoalInput{CategoryID: cat.ID, Title: "sneaky"})
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	title := "renamed"
	_, err = svc.UpdateGoal(ctx, reader.ID, goal.ID, GoalPatch{Title: &title})
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	assert.ErrorIs(t, svc.DeleteCategory(ctx, reader.ID, cat.ID), policy.ErrPermissionDenied)

	cats, err := svc.ListCategories(ctx, reader.ID, store.CategoryFilter{})
	require.NoError(t, err)
	assert.Len(t, cats, 1)

	got, err := svc.GetGoal(ctx, reader.ID, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, "vacuum", got.Title)
}

func TestStranger_SeesNotFound(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	owner := storetest.User(t, db, "owner")
	stranger := storetest.User(t, db, "stranger")
	board := storetest.Board(t, db, "home", owner)
	cat := storetest.Category(t, db, board, owner, "chores")

	_, err := svc.GetBoard(ctx, stranger.ID, board.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteCategory(ctx, stranger.ID, cat.ID), store.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteBoard(ctx, stranger.ID, board.ID), store.ErrNotFound)
}

func TestUpdateGoal_ReparentRequiresWriteOnDestination(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	alice := storetest.User(t, db, "alice")
	bob := storetest.User(t, db, "bob")

	boardA := storetest.Board(t, db, "A", alice)
	boardB := storetest.Board(t, db, "B", bob)
	storetest.Participant(t, db, boardB, alice, model.RoleReader)
	catA := storetest.Category(t, db, boardA, alice, "a")
	catB := storetest.Category(t, db, boardB, bob, "b")
	goal := storetest.Goal(t, db, catA, alice, "escape")

	_, err := svc.UpdateGoal(ctx, alice.ID, goal.ID, GoalPatch{CategoryID: &catB.ID})
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	got, err := svc.GetGoal(ctx, alice.ID, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, catA.ID, got.CategoryID, "goal must stay on its original category")

	require.NoError(t, db.Model(&model.BoardParticipant{}).
		Where("board_id = ? AND user_id = ?", boardB.ID, alice.ID).
		Update("role", model.RoleWriter).Error)

	moved, err := svc.UpdateGoal(ctx, alice.ID, goal.ID, GoalPatch{CategoryID: &catB.ID})
	require.NoError(t, err)
	assert.Equal(t, catB.ID, moved.CategoryID)
}

func TestDeleteGoal_Archives(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	owner := storetest.User(t, db, "owner")
	board := storetest.Board(t, db, "home", owner)
	cat := storetest.Category(t, db, board, owner, "chores")
	goal := storetest.Goal(t, db, cat, owner, "vacuum")

	require.NoError(t, svc.DeleteGoal(ctx, owner.ID, goal.ID))

	var g model.Goal
	require.NoError(t, db.First(&g, goal.ID).Error)
	assert.Equal(t, model.StatusArchived, g.Status)

	_, err := svc.GetGoal(ctx, owner.ID, goal.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateBoard_Participants(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	owner := storetest.User(t, db, "owner")
	writer := storetest.User(t, db, "writer")
	storetest.User(t, db, "newbie")
	board := storetest.Board(t, db, "home", owner)
	storetest.Participant(t, db, board, writer, model.RoleWriter)

	participants := []ParticipantInput{{Username: "newbie", Role: model.RoleReader}}
	_, err := svc.UpdateBoard(ctx, writer.ID, board.ID, BoardPatch{Participants: &participants})
	assert.ErrorIs(t, err, policy.ErrPermissionDenied, "only the owner may replace participants")

	bad := []ParticipantInput{{Username: "newbie", Role: model.RoleOwner}}
	_, err = svc.UpdateBoard(ctx, owner.ID, board.ID, BoardPatch{Participants: &bad})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "participants")

	self := []ParticipantInput{{Username: "owner", Role: model.RoleReader}}
	_, err = svc.UpdateBoard(ctx, owner.ID, board.ID, BoardPatch{Participants: &self})
	require.ErrorAs(t, err, &verr)

	updated, err := svc.UpdateBoard(ctx, owner.ID, board.ID, BoardPatch{Participants: &participants})
	require.NoError(t, err)
	roles := map[string]model.Role{}
	for _, p := range updated.Participants {
		roles[p.User.Username] = p.Role
	}
	assert.Equal(t, map[string]model.Role{"owner": model.RoleOwner, "newbie": model.RoleReader}, roles)

	empty := []ParticipantInput{}
	updated, err = svc.UpdateBoard(ctx, owner.ID, board.ID, BoardPatch{Participants: &empty})
	require.NoError(t, err)
	require.Len(t, updated.Participants, 1)
	assert.Equal(t, model.RoleOwner, updated.Participants[0].Role)
}

func TestComments_ReaderCanReadAndOwnOnly(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	owner := storetest.User(t, db, "owner")
	reader := storetest.User(t, db, "reader")
	board := storetest.Board(t, db, "home", owner)
	storetest.Participant(t, db, board, reader, model.RoleReader)
	cat := storetest.Category(t, db, board, owner, "chores")
	goal := storetest.Goal(t, db, cat, owner, "vacuum")

	ownerComment, err := svc.CreateComment(ctx, owner.ID, goal.ID, "today")
	require.NoError(t, err)

	got, err := svc.GetComment(ctx, reader.ID, ownerComment.ID)
	require.NoError(t, err)
	assert.Equal(t, "today", got.Text)

	_, err = svc.UpdateComment(ctx, reader.ID, ownerComment.ID, "hijack")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	readerComment, err := svc.CreateComment(ctx, reader.ID, goal.ID, "ok")
	require.NoError(t, err)
	_, err = svc.UpdateComment(ctx, reader.ID, readerComment.ID, "sure")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteComment(ctx, reader.ID, readerComment.ID))
}

func TestLinkChat_InvalidCode(t *testing.T) {
	svc, db := newService(t)
	u := storetest.User(t, db, "owner")

	_, err := svc.LinkChat(context.Background(), u.ID, "nope")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "verification_code")
}
