package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProviderSwitchEvent アクティブバックエンド切り替えの監査記録
type ProviderSwitchEvent struct {
	ID        string
	From      BackendID
	To        BackendID
	Succeeded bool
	Reason    string
	CreatedAt time.Time
}

// NewProviderSwitchEvent 新しいProviderSwitchEventを作成。cause が nil なら成功
func NewProviderSwitchEvent(from, to BackendID, cause error) *ProviderSwitchEvent {
	event := &ProviderSwitchEvent{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Succeeded: cause == nil,
		CreatedAt: time.Now(),
	}
	if cause != nil {
		event.Reason = cause.Error()
	}
	return event
}

// ProviderEventRepository 切り替え履歴リポジトリのインターフェース
type ProviderEventRepository interface {
	Save(ctx context.Context, event *ProviderSwitchEvent) error
	FindRecent(ctx context.Context, limit int) ([]*ProviderSwitchEvent, error)
}

// CacheRepository キャッシュリポジトリのインターフェース
type CacheRepository interface {
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
