package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue は指定名のカウンタ値をレジストリから取り出す。
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && lp.GetValue() != want {
					matched = false
				}
			}
			if matched {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordDeliveryResult_CountsByKindAndOutcome は配信結果が
// 宛先種別と成否のラベルで計上されることを検証する。
func TestRecordDeliveryResult_CountsByKindAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDeliveryResult("webhook", true)
	c.RecordDeliveryResult("webhook", true)
	c.RecordDeliveryResult("webhook", false)
	c.RecordDeliveryResult("handle", true)

	got := counterValue(t, reg, "notehub_delivery_results_total", map[string]string{"kind": "webhook", "outcome": "success"})
	if got != 2 {
		t.Errorf("webhook success = %v, want 2", got)
	}
	got = counterValue(t, reg, "notehub_delivery_results_total", map[string]string{"kind": "webhook", "outcome": "failure"})
	if got != 1 {
		t.Errorf("webhook failure = %v, want 1", got)
	}
}

// TestRecordEntryPublished_IncrementsCounter は公開カウンタが増加することを検証する。
func TestRecordEntryPublished_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEntryPublished()
	c.RecordEntryPublished()

	got := counterValue(t, reg, "notehub_entries_published_total", nil)
	if got != 2 {
		t.Errorf("entries_published_total = %v, want 2", got)
	}
}

// TestRecordWebhookLatency_ObservesHistogram はレイテンシが記録されることを検証する。
func TestRecordWebhookLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookLatency(150 * time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "notehub_webhook_latency_seconds" {
			found = true
			if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
				t.Errorf("sample count = %d, want 1", got)
			}
		}
	}
	if !found {
		t.Error("notehub_webhook_latency_seconds metric not found")
	}
}

// TestRegisterPendingGauge はゲージがスクレイプ時にcountFnを反映することを検証する。
func TestRegisterPendingGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	pending := 3
	RegisterPendingGauge(reg, func() int { return pending })

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "notehub_staged_pending" {
			found = true
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
				t.Errorf("staged_pending = %v, want 3", got)
			}
		}
	}
	if !found {
		t.Error("notehub_staged_pending metric not found")
	}
}

// TestSetupMetricsRoute_ServesMetricsEndpoint は/metricsエンドポイントが
// Prometheusフォーマットで応答することを検証する。
func TestSetupMetricsRoute_ServesMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordEntryPublished()

	handler := SetupMetricsRoute(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "notehub_entries_published_total") {
		t.Error("レスポンスにnotehub_entries_published_totalが含まれるべき")
	}
}
