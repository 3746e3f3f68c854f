package deployments

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var exportedMetrics = []string{
	"quantumlink_preview_total",
	"quantumlink_materialize_total",
	"quantumlink_materialize_duration_seconds",
	"quantumlink_materialized_rows_total",
	"quantumlink_chain_links",
	"quantumlink_schema_probe_total",
	"quantumlink_http_requests_total",
	"quantumlink_http_request_duration_seconds",
}

func TestRuleFilesParse(t *testing.T) {
	root := repoRoot(t)
	for _, name := range []string{"quantumlink_rules.yaml", "quantumlink_recording_rules.yaml", "prometheus-scrape.example.yaml"} {
		path := filepath.Join(root, "deployments", "observability", "prometheus", name)
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if len(k.Keys()) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "quantumlink_rules.yaml")

	requiredAlerts := []string{
		"QuantumLinkMaterializeFailureRatioHigh",
		"QuantumLinkMaterializeLatencyP95High",
		"QuantumLinkPreviewFailureRatioHigh",
		"QuantumLinkSchemaProbeFailures",
		"QuantumLinkHTTPErrorRateHigh",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}
	if !strings.Contains(text, "severity: critical") || !strings.Contains(text, "severity: warning") {
		t.Fatal("rules must route both critical and warning severities")
	}
}

func TestAlertsOnlyReferenceRecordedSeries(t *testing.T) {
	alerts := readAsset(t, "quantumlink_rules.yaml")
	records := readAsset(t, "quantumlink_recording_rules.yaml")

	referenced := regexp.MustCompile(`quantumlink:[a-z0-9_]+`).FindAllString(alerts, -1)
	if len(referenced) == 0 {
		t.Fatal("alerts reference no recorded series")
	}
	for _, name := range referenced {
		if !strings.Contains(records, "record: "+name) {
			t.Fatalf("alert references %q which is never recorded", name)
		}
	}
}

func TestRecordingRulesUseExportedMetrics(t *testing.T) {
	text := readAsset(t, "quantumlink_recording_rules.yaml")

	used := regexp.MustCompile(`\bquantumlink_[a-z_]+`).FindAllString(text, -1)
	if len(used) == 0 {
		t.Fatal("recording rules use no metrics")
	}
	for _, name := range used {
		name = strings.TrimSuffix(name, "_bucket")
		if !containsString(exportedMetrics, name) {
			t.Fatalf("recording rules use unknown metric %q", name)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "prometheus-scrape.example.yaml")

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"quantumlink_rules.yaml",
		"quantumlink_recording_rules.yaml",
		"job_name: quantumlink-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func readAsset(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", name)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(content)
}

func containsString(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
