package artifacts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryRepositoryStoreAndGet(t *testing.T) {
	repo := NewMemoryRepository(nil)
	art := &Artifact{Type: "image", MimeType: "image/png", Filename: "a.png"}
	if err := repo.StoreArtifact(context.Background(), art, strings.NewReader("hello")); err != nil {
		t.Fatalf("StoreArtifact: %v", err)
	}
	if art.Id == "" {
		t.Fatal("expected id to be assigned")
	}

	got, data, err := repo.GetArtifact(context.Background(), art.Id)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	defer data.Close()
	if got.Size != 5 {
		t.Errorf("expected size 5, got %d", got.Size)
	}
}

func TestMemoryRepositoryListFiltersAndDelete(t *testing.T) {
	repo := NewMemoryRepository(nil)
	a := &Artifact{Type: "image", SessionID: "s1"}
	b := &Artifact{Type: "text", SessionID: "s2"}
	repo.StoreArtifact(context.Background(), a, strings.NewReader("x"))
	repo.StoreArtifact(context.Background(), b, strings.NewReader("y"))

	results, err := repo.ListArtifacts(context.Background(), Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(results) != 1 || results[0].Id != a.Id {
		t.Fatalf("expected only a, got %+v", results)
	}

	if err := repo.DeleteArtifact(context.Background(), a.Id); err != nil {
		t.Fatalf("DeleteArtifact: %v", err)
	}
	if _, _, err := repo.GetArtifact(context.Background(), a.Id); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestSQLRepositoryStoreArtifact(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS artifacts").WillReturnResult(sqlmock.NewResult(0, 0))
	repo, err := NewSQLRepository(db, nil)
	if err != nil {
		t.Fatalf("NewSQLRepository: %v", err)
	}

	mock.ExpectExec("INSERT INTO artifacts").
		WithArgs(sqlmock.AnyArg(), "image", "image/png", "a.png", int64(5), sqlmock.AnyArg(), "", "", []byte("hello"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	art := &Artifact{Type: "image", MimeType: "image/png", Filename: "a.png"}
	if err := repo.StoreArtifact(context.Background(), art, strings.NewReader("hello")); err != nil {
		t.Fatalf("StoreArtifact: %v", err)
	}
	if art.CreatedAt.After(time.Now()) {
		t.Error("expected CreatedAt to be set in the past")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
