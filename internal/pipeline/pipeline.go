// Package pipeline drives the resolver and the playback locator over a whole channel set
// with separately bounded worker pools, then orders the results by channel number.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapetech/iptvportal/internal/catalog"
	"github.com/snapetech/iptvportal/internal/metrics"
	"github.com/snapetech/iptvportal/internal/playback"
	"github.com/snapetech/iptvportal/internal/resolver"
)

// Pipeline holds one pool size per stage. Tasks never cancel each other; each bounds its
// own wall time through the probe timeouts.
type Pipeline struct {
	Resolver       *resolver.Resolver
	Locator        *playback.Locator
	ResolveWorkers int
	LocateWorkers  int
	Metrics        *metrics.Metrics
}

// Report aggregates the non-fatal conditions of one stage.
type Report struct {
	Stage        string
	Channels     int // channels out of the stage
	NumericOrder bool
	Diagnostics  []catalog.Diagnostic
	Elapsed      time.Duration
}

// Resolve runs the resolver over raw and returns the resolved channels sorted by number.
func (p *Pipeline) Resolve(ctx context.Context, raw []catalog.RawChannel) ([]catalog.Channel, Report) {
	start := time.Now()
	c := newCollector(len(raw))
	g := new(errgroup.Group)
	g.SetLimit(poolSize(p.ResolveWorkers))
	for _, rc := range raw {
		g.Go(func() error {
			c.add(p.Resolver.Resolve(ctx, rc))
			return nil
		})
	}
	_ = g.Wait()
	return p.finish("resolve", c, start)
}

// Locate runs the playback locator over channels. Ineligible channels pass through unchanged.
func (p *Pipeline) Locate(ctx context.Context, channels []catalog.Channel) ([]catalog.Channel, Report) {
	start := time.Now()
	c := newCollector(len(channels))
	g := new(errgroup.Group)
	g.SetLimit(poolSize(p.LocateWorkers))
	for _, ch := range channels {
		g.Go(func() error {
			located, diag := p.Locator.Locate(ctx, ch)
			c.add(&located, diag)
			return nil
		})
	}
	_ = g.Wait()
	return p.finish("locate", c, start)
}

// Run resolves raw and then locates playback addresses for the result.
func (p *Pipeline) Run(ctx context.Context, raw []catalog.RawChannel) ([]catalog.Channel, []Report) {
	resolved, r1 := p.Resolve(ctx, raw)
	final, r2 := p.Locate(ctx, resolved)
	return final, []Report{r1, r2}
}

func (p *Pipeline) finish(stage string, c *collector, start time.Time) ([]catalog.Channel, Report) {
	numeric := catalog.SortChannels(c.channels)
	sort.SliceStable(c.diags, func(i, j int) bool {
		if c.diags[i].Kind != c.diags[j].Kind {
			return c.diags[i].Kind < c.diags[j].Kind
		}
		return c.diags[i].Channel < c.diags[j].Channel
	})
	elapsed := time.Since(start)
	p.Metrics.ObserveStage(stage, elapsed)
	return c.channels, Report{
		Stage:        stage,
		Channels:     len(c.channels),
		NumericOrder: numeric,
		Diagnostics:  c.diags,
		Elapsed:      elapsed,
	}
}

func poolSize(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

// collector is the only state shared between tasks of a stage.
type collector struct {
	mu       sync.Mutex
	channels []catalog.Channel
	diags    []catalog.Diagnostic
}

func newCollector(n int) *collector {
	return &collector{channels: make([]catalog.Channel, 0, n)}
}

func (c *collector) add(ch *catalog.Channel, diag *catalog.Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch != nil {
		c.channels = append(c.channels, *ch)
	}
	if diag != nil {
		c.diags = append(c.diags, *diag)
	}
}

// String renders the report as one block: a summary line, then one line per diagnostic.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d channels in %v", r.Stage, r.Channels, r.Elapsed.Round(time.Millisecond))
	if !r.NumericOrder && r.Channels > 0 {
		b.WriteString(" (non-numeric ids, sorted lexicographically)")
	}
	if len(r.Diagnostics) == 0 {
		b.WriteString(", all good")
		return b.String()
	}
	fmt.Fprintf(&b, ", %d issues:", len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		fmt.Fprintf(&b, "\n  - [%s] %s", d.Kind, d)
	}
	return b.String()
}

// Count returns the number of diagnostics of kind k.
func (r Report) Count(k catalog.DiagnosticKind) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// Log prints the report once through the standard logger.
func (r Report) Log() {
	log.Printf("pipeline: %s", r)
}
