package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authcore "github.com/agilepm-dev/authcore"
	"github.com/agilepm-dev/authcore/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (s *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return s.snapshot }
func (s *fakeSource) AuditDropped() uint64                      { return s.dropped }

func TestRenderExposesEveryCounter(t *testing.T) {
	source := &fakeSource{dropped: 3}
	source.snapshot.Counters[authcore.MetricLoginSuccess] = 42
	source.snapshot.Counters[authcore.MetricRefreshExpired] = 7

	output := NewExporterFromSource(source).Render()

	for _, def := range internaldefs.CounterDefs {
		if !strings.Contains(output, "# HELP "+def.Name+" ") {
			t.Fatalf("missing HELP for %s", def.Name)
		}
		if !strings.Contains(output, "# TYPE "+def.Name+" counter") {
			t.Fatalf("missing TYPE for %s", def.Name)
		}
	}
	if !strings.Contains(output, "authcore_login_success_total 42\n") {
		t.Fatalf("missing login success value:\n%s", output)
	}
	if !strings.Contains(output, "authcore_refresh_expired_total 7\n") {
		t.Fatalf("missing refresh expired value:\n%s", output)
	}
	if !strings.Contains(output, "authcore_audit_dropped_total 3\n") {
		t.Fatalf("missing audit dropped value:\n%s", output)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	exporter := NewExporterFromSource(&fakeSource{})

	server := httptest.NewServer(exporter.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/plain; version=0.0.4") {
		t.Fatalf("unexpected content type: %s", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(body), "authcore_login_success_total 0") {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestRenderNilSafety(t *testing.T) {
	var exporter *Exporter
	if exporter.Render() != "" {
		t.Fatal("nil exporter must render nothing")
	}
}
