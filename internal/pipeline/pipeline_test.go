package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snapetech/iptvportal/internal/catalog"
	"github.com/snapetech/iptvportal/internal/config"
	"github.com/snapetech/iptvportal/internal/metrics"
	"github.com/snapetech/iptvportal/internal/playback"
	"github.com/snapetech/iptvportal/internal/probe"
	"github.com/snapetech/iptvportal/internal/resolver"
)

// gauge tracks the peak number of concurrent calls.
type gauge struct {
	cur, peak atomic.Int32
}

func (g *gauge) enter() {
	n := g.cur.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *gauge) leave() { g.cur.Add(-1) }

// redirector redirects every address containing "ok" to a unicast ch<N> target.
type redirector struct{ g gauge }

func (r *redirector) Redirect(ctx context.Context, addr string) (string, error) {
	r.g.enter()
	defer r.g.leave()
	time.Sleep(10 * time.Millisecond)
	if i := strings.Index(addr, "ok"); i >= 0 {
		return "rtsp://10.0.0.5:554/001ch" + addr[i+2:] + "Uni.sdp", nil
	}
	return "", probe.ErrNoRedirect
}

// puller plays only host 10.0.0.40.
type puller struct{ g gauge }

func (p *puller) Pull(ctx context.Context, u string) error {
	p.g.enter()
	defer p.g.leave()
	if strings.HasPrefix(u, "rtsp://10.0.0.40:") {
		return nil
	}
	return errors.New("exit status 1")
}

func rawSet() []catalog.RawChannel {
	var raw []catalog.RawChannel
	for _, n := range []int{12, 3, 7, 1, 30, 5, 21, 2} {
		id := strconv.Itoa(n)
		sdp := "rtsp://10.0.0.1:554/ok" + id
		if n == 7 {
			sdp = "rtsp://10.0.0.1:554/dead"
		}
		raw = append(raw, catalog.RawChannel{
			ChannelID:     "ch" + id,
			ChannelName:   "CCTV-" + id,
			UserChannelID: id,
			ChannelURL:    "igmp://239.253.240." + id + ":8000",
			ChannelSDP:    sdp,
		})
	}
	raw = append(raw, catalog.RawChannel{ChannelName: "点播", UserChannelID: "900", ChannelURL: "http://x/vod"})
	return raw
}

func newPipeline(rd *redirector, pl *puller, workers int) *Pipeline {
	m := metrics.New()
	return &Pipeline{
		Resolver:       &resolver.Resolver{Prober: rd, Tables: config.DefaultTables(), Retries: 2, Delay: time.Millisecond, Metrics: m},
		Locator:        &playback.Locator{Puller: pl, OffsetDays: 7, Metrics: m},
		ResolveWorkers: workers,
		LocateWorkers:  workers,
		Metrics:        m,
	}
}

func TestResolve_sortedAndReported(t *testing.T) {
	rd := &redirector{}
	p := newPipeline(rd, &puller{}, 3)
	out, rep := p.Resolve(context.Background(), rawSet())
	if len(out) != 8 {
		t.Fatalf("got %d channels, want 8", len(out))
	}
	var ids []string
	for _, ch := range out {
		ids = append(ids, ch.TVGID)
	}
	if got := strings.Join(ids, ","); got != "1,2,3,5,7,12,21,30" {
		t.Errorf("order = %s", got)
	}
	if !rep.NumericOrder || rep.Channels != 8 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Count(catalog.NotMulticast) != 1 || rep.Count(catalog.ProbeNoRedirect) != 1 || len(rep.Diagnostics) != 2 {
		t.Errorf("diagnostics = %v", rep.Diagnostics)
	}
	if rd.g.peak.Load() > 3 {
		t.Errorf("peak concurrency %d exceeds pool size 3", rd.g.peak.Load())
	}
	if out[0].UnicastLiveURL != "rtsp://10.0.0.5:554/001ch1Uni.sdp" {
		t.Errorf("channel 1 unicast = %q", out[0].UnicastLiveURL)
	}
	s := rep.String()
	if !strings.Contains(s, "2 issues") || !strings.Contains(s, "CCTV-7") {
		t.Errorf("report text:\n%s", s)
	}
}

func TestRun_locatesAndKeepsOrder(t *testing.T) {
	pl := &puller{}
	p := newPipeline(&redirector{}, pl, 2)
	final, reps := p.Run(context.Background(), rawSet())
	if len(reps) != 2 || reps[1].Stage != "locate" {
		t.Fatalf("reports = %+v", reps)
	}
	if len(final) != 8 {
		t.Fatalf("final = %d channels", len(final))
	}
	for i, ch := range final {
		if ch.TVGID == "7" {
			if ch.PlaybackTemplate != "" {
				t.Errorf("channel 7 template = %q", ch.PlaybackTemplate)
			}
			continue
		}
		if !strings.HasPrefix(ch.PlaybackTemplate, "rtsp://10.0.0.40:554/") {
			t.Errorf("final[%d] template = %q", i, ch.PlaybackTemplate)
		}
		if !strings.Contains(ch.PlaybackTemplate, "{utc:YmdHMS}") {
			t.Errorf("placeholders lost: %q", ch.PlaybackTemplate)
		}
	}
	if final[0].TVGID != "1" || final[len(final)-1].TVGID != "30" {
		t.Errorf("final order: first %s last %s", final[0].TVGID, final[len(final)-1].TVGID)
	}
	if pl.g.peak.Load() > 2 {
		t.Errorf("locate peak %d exceeds 2", pl.g.peak.Load())
	}
	if len(reps[1].Diagnostics) != 0 {
		t.Errorf("locate diagnostics = %v", reps[1].Diagnostics)
	}
}

func TestLocate_lexicographicFallback(t *testing.T) {
	p := newPipeline(&redirector{}, &puller{}, 4)
	in := []catalog.Channel{{TVGID: "b"}, {TVGID: "10"}, {TVGID: "a"}, {TVGID: "2"}}
	out, rep := p.Locate(context.Background(), in)
	var ids []string
	for _, ch := range out {
		ids = append(ids, ch.TVGID)
	}
	if got := strings.Join(ids, ","); got != "10,2,a,b" {
		t.Errorf("order = %s", got)
	}
	if rep.NumericOrder {
		t.Error("NumericOrder should be false")
	}
}

func TestReport_allGood(t *testing.T) {
	r := Report{Stage: "resolve", Channels: 3, NumericOrder: true}
	if s := r.String(); !strings.HasSuffix(s, "all good") {
		t.Errorf("String = %q", s)
	}
}
