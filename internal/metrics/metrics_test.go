package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func export(t *testing.T, m *Metrics) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stephanus.prom")
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Document("annotate", "written", 20*time.Millisecond)
	m.Document("annotate", "written", 30*time.Millisecond)
	m.Document("annotate", "failed", time.Millisecond)
	m.Citations("wrapped", 5)
	m.Citations("rejected", 0)
	m.Amendments("fixed_n_work", 2)

	text := export(t, m)
	for _, want := range []string{
		`stephanus_documents_total{pass="annotate",status="written"} 2`,
		`stephanus_documents_total{pass="annotate",status="failed"} 1`,
		`stephanus_citations_total{kind="wrapped"} 5`,
		`stephanus_amendments_total{kind="fixed_n_work"} 2`,
		`stephanus_document_duration_seconds_count{pass="annotate"} 3`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, `kind="rejected"`) {
		t.Errorf("zero add created a series:\n%s", text)
	}
}

func TestSucceeded(t *testing.T) {
	m := New()
	m.Succeeded(time.Unix(1700000000, 0))
	if text := export(t, m); !strings.Contains(text, "stephanus_last_success_timestamp_seconds 1.7e+09") {
		t.Errorf("textfile missing timestamp:\n%s", text)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Citations("wrapped", 1)
	if strings.Contains(export(t, b), `kind="wrapped"`) {
		t.Error("counters leaked between registries")
	}
}
