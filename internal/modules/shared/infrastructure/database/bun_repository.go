package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"

	_ "github.com/go-sql-driver/mysql"

	"wastewise-api/internal/config"
	"wastewise-api/internal/modules/classification/domain"
)

// ProviderSwitchEvent BUNモデル
type ProviderSwitchEvent struct {
	bun.BaseModel `bun:"table:provider_switch_events"`

	ID           string    `bun:"id,pk,type:varchar(36)"`
	FromProvider string    `bun:"from_provider,notnull,type:varchar(32)"`
	ToProvider   string    `bun:"to_provider,notnull,type:varchar(32)"`
	Succeeded    bool      `bun:"succeeded,notnull"`
	Reason       *string   `bun:"reason,type:text"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// BunProviderEventRepository BUN実装
type BunProviderEventRepository struct {
	db *bun.DB
}

// NewBunProviderEventRepository 新しいBunProviderEventRepositoryを作成
func NewBunProviderEventRepository(cfg *config.MySQLConfig) (*BunProviderEventRepository, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	sqldb, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := bun.NewDB(sqldb, mysqldialect.New())

	// 接続確認
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &BunProviderEventRepository{db: db}
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewBunProviderEventRepositoryWithDB DBインスタンスから作成（テスト用）
func NewBunProviderEventRepositoryWithDB(db *bun.DB) *BunProviderEventRepository {
	return &BunProviderEventRepository{db: db}
}

// EnsureSchema テーブルが無ければ作成
func (r *BunProviderEventRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*ProviderSwitchEvent)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create provider_switch_events table: %w", err)
	}
	return nil
}

// Save 切り替えイベントを保存
func (r *BunProviderEventRepository) Save(ctx context.Context, event *domain.ProviderSwitchEvent) error {
	if _, err := r.db.NewInsert().Model(toModel(event)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save provider switch event: %w", err)
	}
	return nil
}

// FindRecent 新しい順に最大limit件を取得
func (r *BunProviderEventRepository) FindRecent(ctx context.Context, limit int) ([]*domain.ProviderSwitchEvent, error) {
	var models []ProviderSwitchEvent
	query := r.db.NewSelect().
		Model(&models).
		Order("created_at DESC", "id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to find provider switch events: %w", err)
	}

	events := make([]*domain.ProviderSwitchEvent, len(models))
	for i := range models {
		events[i] = toEntity(&models[i])
	}
	return events, nil
}

// Close データベース接続を閉じる
func (r *BunProviderEventRepository) Close() error {
	return r.db.Close()
}

func toModel(event *domain.ProviderSwitchEvent) *ProviderSwitchEvent {
	model := &ProviderSwitchEvent{
		ID:           event.ID,
		FromProvider: string(event.From),
		ToProvider:   string(event.To),
		Succeeded:    event.Succeeded,
		CreatedAt:    event.CreatedAt,
	}
	if event.Reason != "" {
		model.Reason = &event.Reason
	}
	return model
}

func toEntity(model *ProviderSwitchEvent) *domain.ProviderSwitchEvent {
	event := &domain.ProviderSwitchEvent{
		ID:        model.ID,
		From:      domain.BackendID(model.FromProvider),
		To:        domain.BackendID(model.ToProvider),
		Succeeded: model.Succeeded,
		CreatedAt: model.CreatedAt,
	}
	if model.Reason != nil {
		event.Reason = *model.Reason
	}
	return event
}
