package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/notehub/internal/model"
)

// --- モック ---

// mockGuard はテスト用のSSRFガード。
// httptestサーバーは127.0.0.1で起動するため、本物のガードではブロックされる。
type mockGuard struct {
	internal map[string]bool
}

func (m *mockGuard) IsInternal(rawURL string) bool {
	return m.internal[rawURL]
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockGuard) ValidateURL(rawURL string) error {
	return nil
}

func testEntry() *model.Entry {
	return &model.Entry{
		ID:              "entry-1",
		AuthorPseudonym: "quiet-otter",
		AuthorHandle:    "alice",
		Content:         "<p>hello</p>",
		CreatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		To:              []string{"@bob", "https://example.com/hook"},
		InReplyTo:       "entry-0",
	}
}

func testDispatcher(client *http.Client) *Dispatcher {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewDispatcher(client, &mockGuard{}, logger)
}

// --- テスト ---

// TestDeliver_PayloadShape はWebhookペイロードのワイヤ契約を検証する。
func TestDeliver_PayloadShape(t *testing.T) {
	var got map[string]any
	var contentType, userAgent string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		userAgent = r.Header.Get("User-Agent")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := testDispatcher(ts.Client())
	entry := testEntry()

	result := d.Deliver(context.Background(), ts.URL, entry, "https://notes.example.com", nil)
	if !result.Success {
		t.Fatalf("Deliver failed: %s", result.Error)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	if userAgent != "Notehub/1.0 Webhook" {
		t.Errorf("User-Agent = %q", userAgent)
	}

	if got["event"] != EventEntryPublished {
		t.Errorf("event = %v, want %q", got["event"], EventEntryPublished)
	}
	if got["entryId"] != "entry-1" {
		t.Errorf("entryId = %v", got["entryId"])
	}

	author, ok := got["author"].(map[string]any)
	if !ok {
		t.Fatalf("author is not an object: %v", got["author"])
	}
	if author["handle"] != "alice" {
		t.Errorf("author.handle = %v", author["handle"])
	}
	if author["pseudonym"] != "quiet-otter" {
		t.Errorf("author.pseudonym = %v", author["pseudonym"])
	}

	// エポックミリ秒とISO文字列の両方を含む
	if got["timestamp"] != float64(entry.CreatedAt.UnixMilli()) {
		t.Errorf("timestamp = %v, want %d", got["timestamp"], entry.CreatedAt.UnixMilli())
	}
	if got["timestampISO"] != "2025-06-01T12:00:00Z" {
		t.Errorf("timestampISO = %v", got["timestampISO"])
	}

	if got["visibility"] != "addressed" {
		t.Errorf("visibility = %v, want addressed", got["visibility"])
	}
	if got["inReplyTo"] != "entry-0" {
		t.Errorf("inReplyTo = %v", got["inReplyTo"])
	}
	if got["url"] != "https://notes.example.com/entries/entry-1" {
		t.Errorf("url = %v", got["url"])
	}

	to, ok := got["to"].([]any)
	if !ok || len(to) != 2 {
		t.Errorf("to = %v, want 2 elements", got["to"])
	}
}

// TestDeliver_NullableFields はハンドル未公開・非リプライのペイロードで
// handleとinReplyToがnullになることを検証する。
func TestDeliver_NullableFields(t *testing.T) {
	var got map[string]any

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := testDispatcher(ts.Client())
	entry := &model.Entry{
		ID:              "entry-2",
		AuthorPseudonym: "quiet-otter",
		CreatedAt:       time.Now(),
	}

	result := d.Deliver(context.Background(), ts.URL, entry, "https://notes.example.com", nil)
	if !result.Success {
		t.Fatalf("Deliver failed: %s", result.Error)
	}

	author := got["author"].(map[string]any)
	if author["handle"] != nil {
		t.Errorf("author.handle = %v, want null", author["handle"])
	}
	if got["inReplyTo"] != nil {
		t.Errorf("inReplyTo = %v, want null", got["inReplyTo"])
	}
	if got["visibility"] != "public" {
		t.Errorf("visibility = %v, want public", got["visibility"])
	}

	// 公開エントリでもtoは空配列であり、nullにしない
	if _, ok := got["to"].([]any); !ok {
		t.Errorf("to = %v, want empty array", got["to"])
	}
}

// TestDeliver_HeaderOverride は呼び出し元指定ヘッダーがデフォルトを
// 上書きできることを検証する。
func TestDeliver_HeaderOverride(t *testing.T) {
	var userAgent, custom string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		custom = r.Header.Get("X-Notebook-Token")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := testDispatcher(ts.Client())
	headers := map[string]string{
		"User-Agent":       "custom-agent/2.0",
		"X-Notebook-Token": "secret",
	}

	result := d.Deliver(context.Background(), ts.URL, testEntry(), "https://notes.example.com", headers)
	if !result.Success {
		t.Fatalf("Deliver failed: %s", result.Error)
	}
	if userAgent != "custom-agent/2.0" {
		t.Errorf("User-Agent = %q, 呼び出し元の値が優先されるべき", userAgent)
	}
	if custom != "secret" {
		t.Errorf("X-Notebook-Token = %q", custom)
	}
}

// TestDeliver_BlocksInternalURL は内部URLが送信されず失敗結果になることを検証する。
func TestDeliver_BlocksInternalURL(t *testing.T) {
	requested := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer ts.Close()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	guard := &mockGuard{internal: map[string]bool{ts.URL: true}}
	d := NewDispatcher(ts.Client(), guard, logger)

	result := d.Deliver(context.Background(), ts.URL, testEntry(), "https://notes.example.com", nil)
	if result.Success {
		t.Error("内部URLへの配信は失敗すべき")
	}
	if result.Error != model.DeliveryReasonInternalURLBlocked {
		t.Errorf("Error = %q, want %q", result.Error, model.DeliveryReasonInternalURLBlocked)
	}
	if requested {
		t.Error("ブロックされたURLへHTTPリクエストが送信されてはならない")
	}
}

// TestDeliver_Non2xxIsFailure は2xx以外のステータスが失敗になることを検証する。
func TestDeliver_Non2xxIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	d := testDispatcher(ts.Client())

	result := d.Deliver(context.Background(), ts.URL, testEntry(), "https://notes.example.com", nil)
	if result.Success {
		t.Error("502は失敗として報告されるべき")
	}
	if result.Error != "HTTP 502" {
		t.Errorf("Error = %q, want %q", result.Error, "HTTP 502")
	}
}

// TestDeliver_NetworkErrorIsFailure は接続エラーが失敗結果になることを検証する。
func TestDeliver_NetworkErrorIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close() // 事前に閉じて接続エラーを起こす

	d := testDispatcher(&http.Client{Timeout: time.Second})

	result := d.Deliver(context.Background(), url, testEntry(), "https://notes.example.com", nil)
	if result.Success {
		t.Error("接続エラーは失敗として報告されるべき")
	}
	if result.Error == "" {
		t.Error("失敗理由が空であってはならない")
	}
}

// TestDeliver_RecordsLatency は配信レイテンシが記録されることを検証する。
func TestDeliver_RecordsLatency(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	observer := &mockLatencyObserver{}
	d := testDispatcher(ts.Client())
	d.SetLatencyObserver(observer)

	d.Deliver(context.Background(), ts.URL, testEntry(), "https://notehub.example.com", nil)

	if observer.count != 1 {
		t.Errorf("latency記録回数 = %d, want 1", observer.count)
	}
	if observer.last < 0 {
		t.Errorf("記録されたレイテンシが負: %v", observer.last)
	}
}

// TestDeliver_InternalURLSkipsLatency はブロックされた配信でレイテンシを
// 記録しないことを検証する。
func TestDeliver_InternalURLSkipsLatency(t *testing.T) {
	observer := &mockLatencyObserver{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	guard := &mockGuard{internal: map[string]bool{"http://10.0.0.1/hook": true}}
	d := NewDispatcher(http.DefaultClient, guard, logger)
	d.SetLatencyObserver(observer)

	d.Deliver(context.Background(), "http://10.0.0.1/hook", testEntry(), "https://notehub.example.com", nil)

	if observer.count != 0 {
		t.Errorf("latency記録回数 = %d, want 0", observer.count)
	}
}

type mockLatencyObserver struct {
	count int
	last  time.Duration
}

func (m *mockLatencyObserver) RecordWebhookLatency(duration time.Duration) {
	m.count++
	m.last = duration
}
