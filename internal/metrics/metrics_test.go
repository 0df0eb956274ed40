package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sneh-joshi/remindd/internal/metrics"
)

func TestRegistry_ReminderCounters(t *testing.T) {
	var reg metrics.Registry

	reg.Created.Add(2)
	reg.Duplicates.Add(1)
	reg.Fired.Add(2)
	reg.StaleFires.Add(1)

	if got := reg.Created.Load(); got != 2 {
		t.Fatalf("Created = %d, want 2", got)
	}
	if got := reg.StaleFires.Load(); got != 1 {
		t.Fatalf("StaleFires = %d, want 1", got)
	}
}

func TestRegistry_HTTPCounters(t *testing.T) {
	var reg metrics.Registry

	reqKey := metrics.HTTPKey("POST", "/reminders", "201")
	durKey := metrics.HTTPDurKey("POST", "/reminders")

	reg.HTTPReqs.Inc(reqKey)
	reg.HTTPReqs.Inc(reqKey)
	reg.HTTPDurMs.Add(durKey, 42)
	reg.HTTPDurMs.Add(durKey, 18)
	reg.HTTPDurCnt.Inc(durKey)
	reg.HTTPDurCnt.Inc(durKey)

	reqCount := int64(0)
	reg.HTTPReqs.Each(func(k string, v int64) {
		if k == reqKey {
			reqCount = v
		}
	})
	if reqCount != 2 {
		t.Fatalf("HTTPReqs = %d, want 2", reqCount)
	}
}

func TestHandler_RendersPrometheusText(t *testing.T) {
	var reg metrics.Registry
	reg.Created.Add(3)
	reg.Fired.Add(1)
	reg.WSClients.Add(2)
	reg.HTTPReqs.Inc(metrics.HTTPKey("GET", "/health", "200"))

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type: %s", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"remindd_reminders_created_total 3",
		"remindd_reminders_fired_total 1",
		"remindd_ws_clients 2",
		`remindd_http_requests_total{method="GET",path="/health",status="200"} 1`,
		"# TYPE remindd_reminders_created_total counter",
		"# TYPE remindd_ws_clients gauge",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q\n---\n%s", want, text)
		}
	}
}
