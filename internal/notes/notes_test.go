package notes

import (
	"context"
	"errors"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Note{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestCreateAndGet(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, 1, "단어장", "사과 = apple")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := repo.Get(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "단어장" || got.Content != "사과 = apple" {
		t.Fatalf("unexpected note: %+v", got)
	}
}

func TestGet_OtherUsersNoteIsNotFound(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, 1, "mine", "secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.Get(ctx, created.ID, 2); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign note must read as missing, got %v", err)
	}
}

func TestList_OnlyOwnNotes(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	if _, err := repo.Create(ctx, 1, "a", "1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, 2, "b", "2"); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := repo.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "a" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestUpdate(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, 1, "old", "old body")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := repo.Update(ctx, created.ID, 1, "new", "new body")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "new" || updated.Content != "new body" {
		t.Fatalf("unexpected note: %+v", updated)
	}

	if _, err := repo.Update(ctx, created.ID, 2, "x", "y"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign update must read as missing, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, 1, "t", "c")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Delete(ctx, created.ID, 2); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign delete must read as missing, got %v", err)
	}
	if err := repo.Delete(ctx, created.ID, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, created.ID, 1); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second delete must read as missing, got %v", err)
	}
}
