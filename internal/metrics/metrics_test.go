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

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestRecordRegistration_IncrementsCounter は登録カウンタが方式別に増加することを検証する。
func TestRecordRegistration_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRegistration("password")
	c.RecordRegistration("password")
	c.RecordRegistration("federated")

	if got := counterValue(t, reg, "negocio_registrations_total"); got != 3 {
		t.Errorf("registrations_total = %v, want 3", got)
	}
}

// TestRecordLogin_IncrementsCounter はログインカウンタが増加することを検証する。
func TestRecordLogin_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin("password")
	c.RecordLoginFailure("INVALID_ASSERTION")
	c.RecordLoginFailure("PROFILE_NOT_FOUND")

	if got := counterValue(t, reg, "negocio_logins_total"); got != 1 {
		t.Errorf("logins_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "negocio_login_failures_total"); got != 2 {
		t.Errorf("login_failures_total = %v, want 2", got)
	}
}

// TestRecordProvisioning_IncrementsCounters はプロビジョニングの成否カウンタを検証する。
func TestRecordProvisioning_IncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCompanyProvisioned()
	c.RecordCompanyProvisioned()
	c.RecordProvisioningFailure("COMPANY_ALREADY_EXISTS")

	if got := counterValue(t, reg, "negocio_companies_provisioned_total"); got != 2 {
		t.Errorf("companies_provisioned_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "negocio_provisioning_failures_total"); got != 1 {
		t.Errorf("provisioning_failures_total = %v, want 1", got)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "negocio_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "409":
					if val != 1 {
						t.Errorf("http_status_total{status_code=409} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("negocio_http_status_total metric not found")
	}
}

// TestRecordRequestLatency_ObservesHistogram はレイテンシヒストグラムに値が記録されることを検証する。
func TestRecordRequestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(100 * time.Millisecond)
	c.RecordRequestLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "negocio_request_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("negocio_request_latency_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat はスクレイプエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRegistration("password")
	c.RecordLogin("federated")
	c.RecordCompanyProvisioned()
	c.RecordHTTPStatus(200)
	c.RecordRequestLatency(500 * time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"negocio_registrations_total",
		"negocio_logins_total",
		"negocio_companies_provisioned_total",
		"negocio_http_status_total",
		"negocio_request_latency_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordLogin("password")
	c2.RecordLogin("password")
	c2.RecordLogin("password")

	if got := counterValue(t, reg1, "negocio_logins_total"); got != 1 {
		t.Errorf("reg1 logins = %v, want 1", got)
	}
	if got := counterValue(t, reg2, "negocio_logins_total"); got != 2 {
		t.Errorf("reg2 logins = %v, want 2", got)
	}
}
