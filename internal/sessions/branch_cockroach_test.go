package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/haasonsaas/nexus/pkg/models"
)

func TestNewCockroachBranchStore(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewCockroachBranchStore(db)
	if store == nil || store.db != db {
		t.Fatal("expected store to wrap the given db")
	}
}

func TestCockroachBranchStore_CreateBranch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewCockroachBranchStore(db)

	branch := &models.Branch{SessionID: "session-1", Name: "experiment", Status: models.BranchStatusActive}
	mock.ExpectExec("INSERT INTO branches").
		WithArgs(sqlmock.AnyArg(), "session-1", nil, "experiment", "", int64(0),
			models.BranchStatusActive, false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.CreateBranch(context.Background(), branch); err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}
	if branch.ID == "" {
		t.Error("expected CreateBranch to assign an ID")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCockroachBranchStore_GetBranchNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewCockroachBranchStore(db)

	mock.ExpectQuery("SELECT (.+) FROM branches WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.GetBranch(context.Background(), "missing")
	if !errors.Is(err, ErrBranchNotFound) {
		t.Errorf("GetBranch() error = %v, want ErrBranchNotFound", err)
	}
}

func TestCockroachBranchStore_ListBranches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewCockroachBranchStore(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "parent_branch_id", "name", "description", "branch_point", "status", "is_primary", "metadata", "created_at", "updated_at", "merged_at"}).
		AddRow("branch-1", "session-1", nil, "main", "", int64(0), models.BranchStatusActive, true, []byte("{}"), now, now, nil)

	mock.ExpectQuery("SELECT (.+) FROM branches WHERE session_id").
		WithArgs("session-1", models.BranchStatusArchived).
		WillReturnRows(rows)

	branches, err := store.ListBranches(context.Background(), "session-1", DefaultBranchListOptions())
	if err != nil {
		t.Fatalf("ListBranches() error = %v", err)
	}
	if len(branches) != 1 || branches[0].ID != "branch-1" {
		t.Fatalf("unexpected branches: %+v", branches)
	}
}

func TestCockroachBranchStore_ForkBranch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewCockroachBranchStore(db)

	now := time.Now()
	parentRows := sqlmock.NewRows([]string{"id", "session_id", "parent_branch_id", "name", "description", "branch_point", "status", "is_primary", "metadata", "created_at", "updated_at", "merged_at"}).
		AddRow("branch-1", "session-1", nil, "main", "", int64(0), models.BranchStatusActive, true, []byte("{}"), now, now, nil)
	mock.ExpectQuery("SELECT (.+) FROM branches WHERE id").WithArgs("branch-1").WillReturnRows(parentRows)
	mock.ExpectExec("INSERT INTO branches").WillReturnResult(sqlmock.NewResult(1, 1))

	forked, err := store.ForkBranch(context.Background(), "branch-1", 5, "alt-path")
	if err != nil {
		t.Fatalf("ForkBranch() error = %v", err)
	}
	if forked.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", forked.SessionID, "session-1")
	}
	if forked.ParentBranchID == nil || *forked.ParentBranchID != "branch-1" {
		t.Errorf("ParentBranchID = %v, want branch-1", forked.ParentBranchID)
	}
	if forked.BranchPoint != 5 {
		t.Errorf("BranchPoint = %d, want 5", forked.BranchPoint)
	}
}

func TestCockroachBranchStore_MergeBranchRejectsPrimary(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewCockroachBranchStore(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "parent_branch_id", "name", "description", "branch_point", "status", "is_primary", "metadata", "created_at", "updated_at", "merged_at"}).
		AddRow("branch-1", "session-1", nil, "main", "", int64(0), models.BranchStatusActive, true, []byte("{}"), now, now, nil)
	mock.ExpectQuery("SELECT (.+) FROM branches WHERE id").WithArgs("branch-1").WillReturnRows(rows)

	_, err = store.MergeBranch(context.Background(), "branch-1", "branch-2", models.MergeStrategyContinue)
	if !errors.Is(err, ErrCannotMergePrimary) {
		t.Errorf("MergeBranch() error = %v, want ErrCannotMergePrimary", err)
	}
}
