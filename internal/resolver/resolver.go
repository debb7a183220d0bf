// Package resolver turns raw portal channels into resolved channels: the multicast
// address, the display and guide names, the group, and, when the redirect probe finds one,
// the unicast live address and its catch-up template.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/snapetech/iptvportal/internal/catalog"
	"github.com/snapetech/iptvportal/internal/config"
	"github.com/snapetech/iptvportal/internal/metrics"
	"github.com/snapetech/iptvportal/internal/probe"
	"github.com/snapetech/iptvportal/internal/safeurl"
)

// Prober finds where an RTSP address redirects to. *probe.Runner implements it.
type Prober interface {
	Redirect(ctx context.Context, rtspURL string) (string, error)
}

var (
	sdpRe      = regexp.MustCompile(`rtsp://\S+`)
	templateRe = regexp.MustCompile(`(rtsp://\S+:\d+).*?(ch\d+)`)
)

// Resolver resolves one channel at a time and may be shared between goroutines.
type Resolver struct {
	Prober    Prober
	Tables    *config.Tables
	Retries   int           // probe attempts per channel; <= 0 means 5
	Delay     time.Duration // pause between attempts
	Timeshift string
	Template  string
	Metrics   *metrics.Metrics
}

// New builds a Resolver from cfg and tables.
func New(cfg *config.Config, tables *config.Tables, p Prober, m *metrics.Metrics) *Resolver {
	return &Resolver{
		Prober:    p,
		Tables:    tables,
		Retries:   cfg.ProbeRetries,
		Delay:     cfg.ProbeDelay,
		Timeshift: cfg.Timeshift,
		Template:  cfg.PlaybackTemplate,
		Metrics:   m,
	}
}

func (r *Resolver) retries() int {
	if r.Retries <= 0 {
		return 5
	}
	return r.Retries
}

// Resolve derives the resolved channel for raw. A channel without an igmp:// locator yields
// a nil channel and one NotMulticast diagnostic. A channel whose probe never redirects is
// kept with empty unicast fields and a ProbeTimeout or ProbeNoRedirect diagnostic.
func (r *Resolver) Resolve(ctx context.Context, raw catalog.RawChannel) (*catalog.Channel, *catalog.Diagnostic) {
	if !raw.IsMulticast() {
		r.Metrics.Channel("resolve", string(catalog.NotMulticast))
		return nil, &catalog.Diagnostic{
			Kind:    catalog.NotMulticast,
			Channel: raw.DisplayName(),
			Message: "no igmp:// ChannelURL, skipped",
		}
	}
	tables := r.tables()
	name := raw.ChannelName
	if n, ok := tables.ChannelNameByID[raw.UserChannelID]; ok {
		name = n
	}
	ch := &catalog.Channel{
		ChannelID:    raw.ChannelID,
		ChannelName:  name,
		TVGID:        raw.UserChannelID,
		TVGName:      TVGName(raw.ChannelName, raw.UserChannelID, tables),
		GroupTitle:   GroupTitle(name, tables),
		MulticastURL: MulticastURL(raw.ChannelURL),
	}

	addr, ok := SDPAddress(raw.ChannelSDP)
	if !ok {
		r.Metrics.Channel("resolve", "multicast_only")
		return ch, nil
	}
	target, err := r.FindRedirect(ctx, addr)
	if err != nil {
		kind := catalog.ProbeNoRedirect
		if errors.Is(err, probe.ErrTimeout) {
			kind = catalog.ProbeTimeout
		}
		r.Metrics.Channel("resolve", string(kind))
		return ch, &catalog.Diagnostic{
			Kind:    kind,
			Channel: name,
			Message: fmt.Sprintf("no unicast address after %d attempts: %v", r.retries(), err),
		}
	}
	ch.UnicastLiveURL = target
	ch.PlaybackTemplate, _ = PlaybackTemplate(target, r.template(), r.timeshift())
	r.Metrics.Channel("resolve", "resolved")
	return ch, nil
}

// FindRedirect probes addr up to Retries times, sleeping Delay between attempts, and
// returns the first redirect target. The error of the last attempt is returned when
// none succeeds.
func (r *Resolver) FindRedirect(ctx context.Context, addr string) (string, error) {
	retries := r.retries()
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		target, err := r.Prober.Redirect(ctx, addr)
		if err == nil {
			return target, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < retries {
			if err := sleep(ctx, r.Delay); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

func (r *Resolver) tables() *config.Tables {
	if r.Tables == nil {
		return config.DefaultTables()
	}
	return r.Tables
}

func (r *Resolver) template() string {
	if r.Template == "" {
		return config.DefaultPlaybackTemplate
	}
	return r.Template
}

func (r *Resolver) timeshift() string {
	if r.Timeshift == "" {
		return config.DefaultTimeshift
	}
	return r.Timeshift
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MulticastURL rewrites an igmp:// locator to rtp://. Other values are returned unchanged.
func MulticastURL(channelURL string) string {
	if rest, ok := strings.CutPrefix(channelURL, catalog.MulticastScheme); ok {
		return "rtp://" + rest
	}
	return channelURL
}

// TVGName strips quality tags and spaces from name, then applies the by-id and by-name
// rename tables in that order.
func TVGName(name, tvgID string, t *config.Tables) string {
	n := name
	for _, tag := range t.QualityTags {
		n = strings.ReplaceAll(n, tag, "")
	}
	n = strings.ReplaceAll(n, " ", "")
	if v, ok := t.TVGNameByID[tvgID]; ok {
		n = v
	}
	if v, ok := t.TVGNameByName[n]; ok {
		n = v
	}
	return n
}

// GroupTitle returns the title of the first rule whose keyword is contained in name,
// or the default group.
func GroupTitle(name string, t *config.Tables) string {
	for _, g := range t.GroupTitles {
		if strings.Contains(name, g.Keyword) {
			return g.Title
		}
	}
	return t.DefaultGroup
}

// SDPAddress returns the first rtsp:// address embedded in a ChannelSDP value.
func SDPAddress(sdp string) (string, bool) {
	m := sdpRe.FindString(sdp)
	if !safeurl.IsRTSP(m) {
		return "", false
	}
	return m, true
}

// PlaybackTemplate fills tmpl's {hostport}, {index} and {timeshift} from a unicast
// redirect target. It fails when the target has no host:port or no ch<digits> token.
func PlaybackTemplate(unicastURL, tmpl, timeshift string) (string, bool) {
	m := templateRe.FindStringSubmatch(unicastURL)
	if m == nil {
		return "", false
	}
	return strings.NewReplacer(
		"{hostport}", m[1],
		"{index}", m[2],
		"{timeshift}", timeshift,
	).Replace(tmpl), true
}
