package delivery

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/notehub/internal/destination"
	"github.com/hitoshi/notehub/internal/metrics"
)

// TestPublisher_ResolvesAuthorAndDelivers は投稿者を解決して配信が
// 実行されることを検証する。
func TestPublisher_ResolvesAuthorAndDelivers(t *testing.T) {
	carol := notifiableUser("carol", "carol@example.com")
	bob := notifiableUser("bob", "bob@example.com")
	lookup := userDirectory(carol, bob)
	f := newFixture(lookup)

	p := NewPublisher(lookup, f.orch, nil, discardLogger())

	results := p.Publish(context.Background(), entryTo("@bob"))

	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %v, want 1件成功", results)
	}
	// 投稿者carolのメールが返信先として使われる（同報にCCされる）
	if len(f.mailClient.sent) != 1 {
		t.Fatalf("sent = %d件, want 1件", len(f.mailClient.sent))
	}
	if f.mailClient.sent[0].ReplyTo != "carol@example.com" {
		t.Errorf("ReplyTo = %q, 投稿者のメールが設定されるべき", f.mailClient.sent[0].ReplyTo)
	}
}

// TestPublisher_UnknownAuthorDoesNotBlock は投稿者が解決できなくても
// 配信が実行されることを検証する。
func TestPublisher_UnknownAuthorDoesNotBlock(t *testing.T) {
	bob := notifiableUser("bob", "bob@example.com")
	f := newFixture(userDirectory(bob))

	// 投稿者carolを解決できないルックアップ
	p := NewPublisher(userDirectory(bob), f.orch, nil, discardLogger())

	results := p.Publish(context.Background(), entryTo("@bob"))

	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %v, want 1件成功", results)
	}
	// 投稿者不明のためCCもReplyToも付かない
	if len(f.mailClient.sent) != 1 {
		t.Fatalf("sent = %d件, want 1件", len(f.mailClient.sent))
	}
	if f.mailClient.sent[0].ReplyTo != "" {
		t.Errorf("ReplyTo = %q, 投稿者不明なら空であるべき", f.mailClient.sent[0].ReplyTo)
	}
}

// TestPublisher_RecordsMetrics は配信結果がメトリクスに計上されることを検証する。
func TestPublisher_RecordsMetrics(t *testing.T) {
	bob := notifiableUser("bob", "bob@example.com")
	lookup := userDirectory(bob)
	f := newFixture(lookup)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	p := NewPublisher(lookup, f.orch, collector, discardLogger())

	p.Publish(context.Background(), entryTo("@bob", "#general"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	published := 0.0
	deliveries := 0.0
	for _, mf := range mfs {
		switch mf.GetName() {
		case "notehub_entries_published_total":
			published = mf.GetMetric()[0].GetCounter().GetValue()
		case "notehub_delivery_results_total":
			for _, m := range mf.GetMetric() {
				deliveries += m.GetCounter().GetValue()
			}
		}
	}
	if published != 1 {
		t.Errorf("entries_published_total = %v, want 1", published)
	}
	if deliveries != 2 {
		t.Errorf("delivery_results_total 合計 = %v, want 2", deliveries)
	}
}

var _ destination.UserLookup = (*mockUserLookup)(nil)
