package pg

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"guildry.org/internal/envelope"
	"guildry.org/internal/registry"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func mustRecord(t *testing.T, v any) (envelope.Record, []byte) {
	t.Helper()
	codec := envelope.NewCodec()
	rec, err := codec.Wrap(v)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	return rec, raw
}

func TestEntityGetHitAndMiss(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	_, raw := mustRecord(t, registry.Entity{Name: "Guild", Status: registry.EntityActive, Kind: registry.KindDAO})
	mock.ExpectQuery(`select record from entities where id = \$1`).
		WithArgs("dao.guild").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(raw))

	rec, ok, err := s.Entities().Get(ctx, "dao.guild")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if rec.Schema != envelope.CurrentSchema {
		t.Fatalf("schema = %d", rec.Schema)
	}

	mock.ExpectQuery(`select record from entities where id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	_, ok, err = s.Entities().Get(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPairPutAndDelete(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rec, _ := mustRecord(t, registry.ContributionInvite{Description: "join us"})
	mock.ExpectExec(`insert into contribution_invites`).
		WithArgs("dao.guild", "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key := registry.PairKey{EntityID: "dao.guild", Member: "alice"}
	if err := s.Invites().Put(ctx, key, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	mock.ExpectExec(`delete from contribution_invites where entity_id = \$1 and member = \$2`).
		WithArgs("dao.guild", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := s.Invites().Delete(ctx, key)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}

	mock.ExpectExec(`delete from contribution_invites`).
		WithArgs("dao.guild", "alice").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err = s.Invites().Delete(ctx, key)
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAllDecodesRecords(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	_, rawA := mustRecord(t, registry.Contribution{Permissions: registry.Permissions{registry.PermissionAdmin}})
	_, rawB := mustRecord(t, registry.Contribution{})
	mock.ExpectQuery(`select entity_id, member, record from contributions`).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id", "member", "record"}).
			AddRow("dao.guild", "alice", rawA).
			AddRow("dao.guild", "bob", rawB))

	all, err := s.Contributions().All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d", len(all))
	}
	if _, ok := all[registry.PairKey{EntityID: "dao.guild", Member: "alice"}]; !ok {
		t.Fatal("missing alice row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestModeratorRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`select value from registry_meta`).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	moderator, err := s.Moderator(ctx)
	if err != nil || moderator != "" {
		t.Fatalf("empty moderator: %q err=%v", moderator, err)
	}

	mock.ExpectExec(`insert into registry_meta`).
		WithArgs("mod.guild").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.SetModerator(ctx, "mod.guild"); err != nil {
		t.Fatalf("set moderator: %v", err)
	}

	mock.ExpectQuery(`select value from registry_meta`).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("mod.guild"))
	moderator, err = s.Moderator(ctx)
	if err != nil || moderator != "mod.guild" {
		t.Fatalf("moderator: %q err=%v", moderator, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAtomicCommitsAndRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rec, _ := mustRecord(t, registry.Contributor{})
	mock.ExpectBegin()
	mock.ExpectExec(`insert into contributors`).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Atomic(ctx, func(st registry.Store) error {
		return st.Contributors().Put(ctx, "alice", rec)
	})
	if err != nil {
		t.Fatalf("atomic commit: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = s.Atomic(ctx, func(st registry.Store) error {
		return registry.ErrNoPermission
	})
	if err != registry.ErrNoPermission {
		t.Fatalf("atomic rollback: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
