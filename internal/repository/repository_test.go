package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/notehub/internal/model"
	"github.com/hitoshi/notehub/internal/staging"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresChannelRepoはChannelRepositoryインターフェースを満たすことを検証
func TestPostgresChannelRepo_ImplementsInterface(t *testing.T) {
	var _ ChannelRepository = (*PostgresChannelRepo)(nil)
}

// PostgresEntryRepoはEntryRepositoryインターフェースを満たすことを検証
func TestPostgresEntryRepo_ImplementsInterface(t *testing.T) {
	var _ EntryRepository = (*PostgresEntryRepo)(nil)
}

// PostgresStagedEntryRepoはstagingパッケージのジャーナルとして使えることを検証
func TestPostgresStagedEntryRepo_ImplementsJournal(t *testing.T) {
	var _ StagedEntryRepository = (*PostgresStagedEntryRepo)(nil)
	var _ staging.Journal = (*PostgresStagedEntryRepo)(nil)
}

// PostgresNotificationRepoはNotificationRepositoryインターフェースを満たすことを検証
func TestPostgresNotificationRepo_ImplementsInterface(t *testing.T) {
	var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
}

// 各リポジトリが正しく初期化されることを検証
func TestRepositories_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Fatal("expected non-nil user repo")
	}
	if NewPostgresChannelRepo(nil) == nil {
		t.Fatal("expected non-nil channel repo")
	}
	if NewPostgresEntryRepo(nil) == nil {
		t.Fatal("expected non-nil entry repo")
	}
	if NewPostgresStagedEntryRepo(nil) == nil {
		t.Fatal("expected non-nil staged entry repo")
	}
	if NewPostgresNotificationRepo(nil) == nil {
		t.Fatal("expected non-nil notification repo")
	}
}

// ユニットテスト: チャンネル作成時にオーナーが購読者リストの先頭に来ること
// （DB接続なしでロジックのみ検証）
func TestChannelCreate_OwnerIsFirstSubscriber_Concept(t *testing.T) {
	channel := &model.Channel{
		ID:          "general",
		Name:        "General",
		JoinRule:    model.JoinRuleOpen,
		OwnerHandle: "alice",
		Subscribers: []model.Subscriber{
			{Handle: "alice", Role: model.RoleOwner, JoinedAt: time.Now()},
		},
	}

	if len(channel.Subscribers) == 0 || channel.Subscribers[0].Handle != channel.OwnerHandle {
		t.Error("オーナーは購読者リストの先頭であるべき")
	}
	if channel.Subscribers[0].Role != model.RoleOwner {
		t.Error("先頭の購読者はownerロールであるべき")
	}
}

// ユニットテスト: 公開済みエントリはPublishAtを持たないこと
// （ステージングの昇格時に取り除かれるため、entriesテーブルにカラムがない）
func TestEntryInsert_NoPublishAt_Concept(t *testing.T) {
	entry := &model.Entry{
		ID:              "entry-1",
		AuthorPseudonym: "quiet-otter",
		CreatedAt:       time.Now(),
	}

	if entry.IsPending() {
		t.Error("耐久保存されるエントリはPublishAtを持たないべき")
	}
}
