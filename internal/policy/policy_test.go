package policy

import (
	"context"
	"errors"
	"testing"

	"todolist/internal/model"
	"todolist/internal/store"
)

type mockRoles struct {
	roles map[[2]uint]model.Role
	err   error
}

func (m mockRoles) ParticipantRole(_ context.Context, boardID, userID uint) (model.Role, error) {
	if m.err != nil {
		return "", m.err
	}
	role, ok := m.roles[[2]uint{boardID, userID}]
	if !ok {
		return "", store.ErrNotFound
	}
	return role, nil
}

func TestAuthorize_RoleMatrix(t *testing.T) {
	const board = 1
	const (
		owner uint = iota + 10
		writer
		reader
		stranger
	)
	e := NewEngine(mockRoles{roles: map[[2]uint]model.Role{
		{board, owner}:  model.RoleOwner,
		{board, writer}: model.RoleWriter,
		{board, reader}: model.RoleReader,
	}})

	cases := []struct {
		actor uint
		op    Operation
		allow bool
	}{
		{owner, OpRead, true},
		{writer, OpRead, true},
		{reader, OpRead, true},
		{stranger, OpRead, false},

		{owner, OpWrite, true},
		{writer, OpWrite, true},
		{reader, OpWrite, false},
		{stranger, OpWrite, false},

		{owner, OpManageBoard, true},
		{writer, OpManageBoard, false},
		{reader, OpManageBoard, false},
	}
	for _, tc := range cases {
		err := e.Authorize(context.Background(), tc.actor, Resource{Kind: KindGoal, BoardID: board}, tc.op)
		if tc.allow && err != nil {
			t.Fatalf("actor %d op %s: expected allow, got %v", tc.actor, tc.op, err)
		}
		if !tc.allow && !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("actor %d op %s: expected permission denied, got %v", tc.actor, tc.op, err)
		}
	}
}

func TestAuthorize_CommentRequiresCreatorAndParticipant(t *testing.T) {
	e := NewEngine(mockRoles{roles: map[[2]uint]model.Role{
		{1, 5}: model.RoleReader,
		{1, 6}: model.RoleOwner,
	}})
	ctx := context.Background()

	if err := e.Authorize(ctx, 5, Resource{Kind: KindComment, BoardID: 1, CreatorID: 5}, OpModifyComment); err != nil {
		t.Fatalf("reader should modify own comment: %v", err)
	}
	if err := e.Authorize(ctx, 6, Resource{Kind: KindComment, BoardID: 1, CreatorID: 5}, OpModifyComment); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("owner must not modify someone else's comment, got %v", err)
	}
	if err := e.Authorize(ctx, 7, Resource{Kind: KindComment, BoardID: 1, CreatorID: 7}, OpModifyComment); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("creator who left the board must be denied, got %v", err)
	}
}

func TestAuthorize_LookupFailure(t *testing.T) {
	boom := errors.New("db down")
	e := NewEngine(mockRoles{err: boom})
	err := e.Authorize(context.Background(), 1, Resource{BoardID: 1}, OpRead)
	if !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("lookup failure must not look like a deny")
	}
}
