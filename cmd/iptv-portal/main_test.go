package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/snapetech/iptvportal/internal/catalog"
	"github.com/snapetech/iptvportal/internal/config"
)

func testApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Load()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.PlaylistDir = filepath.Join(dir, "playlist")
	cfg.HistoryDB = ""
	cfg.MetricsFile = ""
	cfg.Area = "jinan"
	cfg.AreaCode = 0
	cfg.UdpxyBaseURL = "http://r:4022"
	tables := config.DefaultTables()
	tables.ExcludePublic = []string{"购物"}
	return newApp(cfg, tables)
}

func TestWritePlaylists(t *testing.T) {
	a := testApp(t)
	channels := []catalog.Channel{
		{ChannelName: "CCTV-1", TVGName: "CCTV-1", GroupTitle: "央视频道",
			MulticastURL: "rtp://239.253.240.1:8000", UnicastLiveURL: "rtsp://10.0.0.5:554/ch1Uni.sdp"},
		{ChannelName: "购物", TVGName: "购物", GroupTitle: "其他频道",
			MulticastURL: "rtp://239.253.240.90:8000"},
	}
	if err := a.writePlaylists(channels); err != nil {
		t.Fatal(err)
	}
	pub, err := os.ReadFile(filepath.Join(a.cfg.PlaylistDir, "multicast-public-filtered-jinan.m3u"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(pub), "http://r:4022/rtp/239.253.240.1:8000") || strings.Contains(string(pub), "购物") {
		t.Errorf("public multicast playlist:\n%s", pub)
	}
	priv, err := os.ReadFile(filepath.Join(a.cfg.PlaylistDir, "multicast-private-jinan.m3u"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(priv), "购物") {
		t.Errorf("private playlist should keep all channels:\n%s", priv)
	}
	for _, name := range []string{"unicast-public-filtered-jinan.m3u", "unicast-private-jinan.m3u", a.cfg.MarkdownFile} {
		if _, err := os.Stat(filepath.Join(a.cfg.PlaylistDir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestRecordList(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	if err := a.recordList(ctx, []string{"A", "B"}, true); err != nil {
		t.Fatal(err)
	}
	if err := a.recordList(ctx, []string{"A", "C"}, false); err != nil {
		t.Fatal(err)
	}
	if err := a.recordList(ctx, []string{"A", "C"}, true); err != nil {
		t.Fatal(err)
	}
	list, err := os.ReadFile(a.cfg.DataPath(a.cfg.ChannelListFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(list) != "A\nC\n" {
		t.Errorf("channel list = %q", list)
	}
	log, err := os.ReadFile(a.cfg.DataPath(a.cfg.ChangeLogFile))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(log), "#### 时间: "); n != 2 {
		t.Errorf("change log has %d entries:\n%s", n, log)
	}
	if !strings.Contains(string(log), "上线频道: C\n\n下线频道: B\n\n") {
		t.Errorf("change log:\n%s", log)
	}
}

func TestUnused(t *testing.T) {
	a := testApp(t)
	raw := []catalog.RawChannel{{ChannelName: "A", ChannelURL: "igmp://239.253.240.1:8000"}}
	if err := catalog.SaveRaw(a.rawPath(), raw); err != nil {
		t.Fatal(err)
	}
	if err := a.unused(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(a.cfg.PlaylistDir, "unused.m3u"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "239.253.240.1:8000\n") || !strings.Contains(string(b), "http://r:4022/rtp/239.253.240.2:8000") {
		t.Errorf("unused.m3u:\n%s", b)
	}
}

// Integration test: runs the handshake and catalog fetch against a real portal when
// IPTV_PORTAL_* is set in .env. go test -v -run Integration ./cmd/iptv-portal
func TestIntegration_fetch(t *testing.T) {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		_ = config.LoadEnvFile(p)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		t.Skipf("no portal configured: %v", err)
	}
	cfg.DataDir = t.TempDir()
	a := newApp(cfg, config.DefaultTables())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	raw, err := a.fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	t.Logf("portal advertised %d channels", len(raw))
}
