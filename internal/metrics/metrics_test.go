package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ToolRun("ffprobe", "ok")
	m.ToolRun("ffprobe", "ok")
	m.ToolRun("ffmpeg", "timeout")
	m.Channel("resolve", "resolved")
	m.ScanCandidate()
	if got := testutil.ToFloat64(m.toolRuns.WithLabelValues("ffprobe", "ok")); got != 2 {
		t.Errorf("ffprobe ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.toolRuns.WithLabelValues("ffmpeg", "timeout")); got != 1 {
		t.Errorf("ffmpeg timeout = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.scanAttempts); got != 1 {
		t.Errorf("scan candidates = %v, want 1", got)
	}
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.ToolRun("ffprobe", "ok")
	m.Channel("locate", "located")
	m.ScanCandidate()
	m.ObserveStage("resolve", time.Second)
	if err := m.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Errorf("nil WriteTextfile = %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Channel("resolve", "no_redirect")
	m.ObserveStage("resolve", 1500*time.Millisecond)
	path := filepath.Join(t.TempDir(), "iptv.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, `iptv_portal_channels_total{result="no_redirect",stage="resolve"} 1`) {
		t.Errorf("textfile missing channel counter:\n%s", s)
	}
	if !strings.Contains(s, `iptv_portal_stage_duration_seconds{stage="resolve"} 1.5`) {
		t.Errorf("textfile missing stage gauge:\n%s", s)
	}
}
