package playback

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snapetech/iptvportal/internal/catalog"
	"github.com/snapetech/iptvportal/internal/config"
)

const template = "rtsp://10.0.0.5:554/iptv/Tvod/iptv/001/001/ch2.rsc?tvdr={utc:YmdHMS}GMT-{utcend:YmdHMS}GMT"

var errNoStream = errors.New("exit status 1")

// fakePuller plays the URLs for which ok returns true and records every attempt.
type fakePuller struct {
	mu   sync.Mutex
	urls []string
	ok   func(u string) bool
}

func (f *fakePuller) Pull(ctx context.Context, u string) error {
	f.mu.Lock()
	f.urls = append(f.urls, u)
	f.mu.Unlock()
	if f.ok(u) {
		return nil
	}
	return errNoStream
}

// hosts returns the host of every attempt.
func (f *fakePuller) hosts() []string {
	var out []string
	for _, u := range f.urls {
		rest := strings.TrimPrefix(u, "rtsp://")
		out = append(out, rest[:strings.Index(rest, ":")])
	}
	return out
}

func fixedNow() time.Time { return time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC) }

func channel() catalog.Channel {
	return catalog.Channel{ChannelName: "CCTV-2高清", TVGID: "2", PlaybackTemplate: template}
}

func TestWindow(t *testing.T) {
	begin, end := Window(fixedNow(), 7)
	if begin != "20250301113000" || end != "20250315120000" {
		t.Errorf("Window = %s, %s", begin, end)
	}
	begin, end = Window(fixedNow(), 0)
	if begin != "20250308113000" || end != "20250308120000" {
		t.Errorf("Window(0) = %s, %s", begin, end)
	}
}

func TestFill(t *testing.T) {
	got := Fill(template, "B", "E")
	if !strings.HasSuffix(got, "tvdr=BGMT-EGMT") {
		t.Errorf("Fill = %q", got)
	}
}

func TestLocate_fastPath(t *testing.T) {
	p := &fakePuller{ok: func(string) bool { return true }}
	l := &Locator{Puller: p, OffsetDays: 7, Now: fixedNow}
	got, diag := l.Locate(context.Background(), channel())
	if diag != nil {
		t.Errorf("diag = %+v", diag)
	}
	if got.PlaybackTemplate != template {
		t.Errorf("template changed: %q", got.PlaybackTemplate)
	}
	if len(p.urls) != 1 {
		t.Fatalf("attempts = %d, want 1", len(p.urls))
	}
	if !strings.Contains(p.urls[0], "tvdr=20250301113000GMT-20250315120000GMT") {
		t.Errorf("pulled %q", p.urls[0])
	}
}

func TestLocate_octet40InRangeA(t *testing.T) {
	p := &fakePuller{ok: func(u string) bool { return strings.HasPrefix(u, "rtsp://10.0.0.40:554/") }}
	l := &Locator{Puller: p, OffsetDays: 7, Now: fixedNow}
	got, diag := l.Locate(context.Background(), channel())
	if diag != nil {
		t.Errorf("diag = %+v", diag)
	}
	want := "rtsp://10.0.0.40:554/iptv/Tvod/iptv/001/001/ch2.rsc?tvdr={utc:YmdHMS}GMT-{utcend:YmdHMS}GMT"
	if got.PlaybackTemplate != want {
		t.Errorf("template = %q, want %q", got.PlaybackTemplate, want)
	}
	wantHosts := []string{"10.0.0.5", "10.0.0.36", "10.0.0.37", "10.0.0.38", "10.0.0.39", "10.0.0.40"}
	if h := p.hosts(); strings.Join(h, " ") != strings.Join(wantHosts, " ") {
		t.Errorf("attempted %v, want %v", h, wantHosts)
	}
}

func TestLocate_rangeBOnlyAfterRangeA(t *testing.T) {
	p := &fakePuller{ok: func(u string) bool { return strings.HasPrefix(u, "rtsp://10.0.0.70:") }}
	l := &Locator{Puller: p, OffsetDays: 7, Now: fixedNow}
	got, _ := l.Locate(context.Background(), channel())
	if !strings.HasPrefix(got.PlaybackTemplate, "rtsp://10.0.0.70:554/") {
		t.Errorf("template = %q", got.PlaybackTemplate)
	}
	hosts := p.hosts()[1:]
	var want []string
	for o := 36; o <= 48; o++ {
		want = append(want, "10.0.0."+strconv.Itoa(o))
	}
	want = append(want, "10.0.0.68", "10.0.0.69", "10.0.0.70")
	if strings.Join(hosts, " ") != strings.Join(want, " ") {
		t.Errorf("scan order %v, want %v", hosts, want)
	}
}

func TestLocate_unreachable(t *testing.T) {
	p := &fakePuller{ok: func(string) bool { return false }}
	l := &Locator{Puller: p, OffsetDays: 7, Now: fixedNow}
	got, diag := l.Locate(context.Background(), channel())
	if got.PlaybackTemplate != template {
		t.Errorf("template changed: %q", got.PlaybackTemplate)
	}
	if diag == nil || diag.Kind != catalog.PlaybackUnreachable || diag.Channel != "CCTV-2高清" {
		t.Errorf("diag = %+v", diag)
	}
	if n := len(p.urls); n != 1+13+7 {
		t.Errorf("attempts = %d, want 21", n)
	}
}

func TestLocate_customRanges(t *testing.T) {
	p := &fakePuller{ok: func(string) bool { return false }}
	l := &Locator{Puller: p, Ranges: []config.OctetRange{{Start: 1, End: 2}}, Now: fixedNow}
	l.Locate(context.Background(), channel())
	if h := p.hosts(); strings.Join(h, " ") != "10.0.0.5 10.0.0.1 10.0.0.2" {
		t.Errorf("attempted %v", h)
	}
}

func TestLocate_ineligibleUntouched(t *testing.T) {
	p := &fakePuller{ok: func(string) bool { return false }}
	l := &Locator{Puller: p, Include: []string{"CCTV"}, Exclude: []string{"CCTV-2高清"}, Now: fixedNow}
	ch, diag := l.Locate(context.Background(), channel())
	if diag != nil || ch.PlaybackTemplate != template || len(p.urls) != 0 {
		t.Errorf("excluded channel processed: %+v %+v %d", ch, diag, len(p.urls))
	}
}

func TestEligible(t *testing.T) {
	l := &Locator{}
	if !l.Eligible(channel()) {
		t.Error("empty include list should accept every channel")
	}
	if l.Eligible(catalog.Channel{ChannelName: "x"}) {
		t.Error("channel without template accepted")
	}
	l = &Locator{Include: []string{"CCTV", "卫视"}, Exclude: []string{"CCTV-2"}}
	tests := []struct {
		name string
		want bool
	}{
		{"CCTV-2高清", true}, // exclusion is by exact name
		{"CCTV-2", false},
		{"山东卫视", true},
		{"购物", false},
	}
	for _, tt := range tests {
		ch := catalog.Channel{ChannelName: tt.name, PlaybackTemplate: template}
		if got := l.Eligible(ch); got != tt.want {
			t.Errorf("Eligible(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestReplaceLastOctet(t *testing.T) {
	tests := []struct {
		in    string
		octet int
		want  string
		ok    bool
	}{
		{template, 40, strings.Replace(template, "10.0.0.5", "10.0.0.40", 1), true},
		{"rtsp://user:pw@10.0.0.5:554/a?ip=10.0.0.5", 9, "rtsp://user:pw@10.0.0.9:554/a?ip=10.0.0.5", true},
		{"rtsp://10.0.0.5/a", 1, "rtsp://10.0.0.1/a", true},
		{"rtsp://iptv.example:554/a", 1, "", false},
		{"rtsp://10.0.0.5:554/a", 256, "", false},
		{"no scheme", 1, "", false},
	}
	for _, tt := range tests {
		got, ok := ReplaceLastOctet(tt.in, tt.octet)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ReplaceLastOctet(%q, %d) = %q, %v; want %q, %v", tt.in, tt.octet, got, ok, tt.want, tt.ok)
		}
	}
}
