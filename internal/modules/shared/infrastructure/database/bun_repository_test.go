package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"

	"wastewise-api/internal/modules/classification/domain"
	"wastewise-api/internal/modules/shared/infrastructure/testcontainer"
)

func setupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()
	ctx := context.Background()

	// TestContainer起動
	mysqlContainer, err := testcontainer.StartMySQL(ctx, t)
	if err != nil {
		t.Fatalf("Failed to start mysql container: %v", err)
	}

	// DB接続
	sqldb, err := sql.Open("mysql", mysqlContainer.ConnectionString())
	if err != nil {
		_ = mysqlContainer.Close(ctx)
		t.Fatalf("Failed to open database: %v", err)
	}
	db := bun.NewDB(sqldb, mysqldialect.New())

	// テーブル作成
	if err := NewBunProviderEventRepositoryWithDB(db).EnsureSchema(ctx); err != nil {
		_ = mysqlContainer.Close(ctx)
		t.Fatalf("Failed to create schema: %v", err)
	}

	return db, func() {
		_ = db.Close()
		_ = mysqlContainer.Close(ctx)
	}
}

func TestBunProviderEventRepository_SaveAndFindRecent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewBunProviderEventRepositoryWithDB(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	events := []*domain.ProviderSwitchEvent{
		{ID: "event-1", From: domain.BackendGemini, To: domain.BackendLocal, Succeeded: true, CreatedAt: base},
		{ID: "event-2", From: domain.BackendLocal, To: domain.BackendOpenAI, Succeeded: false,
			Reason: "configuration error (openai): provider has no credential or model file", CreatedAt: base.Add(time.Minute)},
		{ID: "event-3", From: domain.BackendLocal, To: domain.BackendHuggingFace, Succeeded: true, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		if err := repo.Save(ctx, e); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	tests := []struct {
		name    string
		limit   int
		wantIDs []string
	}{
		{name: "正常系: 全件を新しい順", limit: 0, wantIDs: []string{"event-3", "event-2", "event-1"}},
		{name: "正常系: 件数制限", limit: 2, wantIDs: []string{"event-3", "event-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindRecent(ctx, tt.limit)
			if err != nil {
				t.Fatalf("FindRecent() error = %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("FindRecent() len = %d, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("FindRecent()[%d].ID = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	recent, err := repo.FindRecent(ctx, 2)
	if err != nil {
		t.Fatalf("FindRecent() error = %v", err)
	}
	failed := recent[1]
	if failed.Succeeded || failed.Reason == "" || failed.To != domain.BackendOpenAI {
		t.Errorf("failed event = %+v", failed)
	}
	if recent[0].Reason != "" {
		t.Errorf("Reason = %q, want empty", recent[0].Reason)
	}
}

func TestBunProviderEventRepository_SaveFromDomain(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewBunProviderEventRepositoryWithDB(db)
	ctx := context.Background()

	event := domain.NewProviderSwitchEvent(domain.BackendGemini, domain.BackendOpenAI, errors.New("rejected"))
	if err := repo.Save(ctx, event); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// 同じIDは主キー違反
	if err := repo.Save(ctx, event); err == nil {
		t.Error("Expected duplicate key error, got nil")
	}

	got, err := repo.FindRecent(ctx, 10)
	if err != nil {
		t.Fatalf("FindRecent() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != event.ID || got[0].Reason != "rejected" {
		t.Errorf("FindRecent() = %+v", got)
	}
}

func TestBunProviderEventRepository_FindRecentEmpty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := NewBunProviderEventRepositoryWithDB(db).FindRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("FindRecent() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("FindRecent() len = %d, want 0", len(got))
	}
}

func TestModelConversion(t *testing.T) {
	tests := []struct {
		name  string
		event *domain.ProviderSwitchEvent
	}{
		{
			name:  "成功イベント",
			event: &domain.ProviderSwitchEvent{ID: "a", From: domain.BackendGemini, To: domain.BackendLocal, Succeeded: true},
		},
		{
			name:  "失敗イベント",
			event: &domain.ProviderSwitchEvent{ID: "b", From: domain.BackendLocal, To: domain.BackendOpenAI, Reason: "no key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := toModel(tt.event)
			if (model.Reason == nil) != (tt.event.Reason == "") {
				t.Errorf("Reason pointer = %v for %q", model.Reason, tt.event.Reason)
			}
			back := toEntity(model)
			if *back != *tt.event {
				t.Errorf("toEntity(toModel()) = %+v, want %+v", back, tt.event)
			}
		})
	}
}
