// Package playback finds a working catch-up address for resolved channels. The filled
// template is pulled directly first; when that fails, hosts differing only in the last
// IPv4 octet are tried in the configured ranges, in order.
package playback

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/iptvportal/internal/catalog"
	"github.com/snapetech/iptvportal/internal/config"
	"github.com/snapetech/iptvportal/internal/metrics"
)

const (
	BeginPlaceholder = "{utc:YmdHMS}"
	EndPlaceholder   = "{utcend:YmdHMS}"
	// TimeLayout is the fixed-width YYYYMMDDhhmmss stamp the portal expects.
	TimeLayout = "20060102150405"
)

// DefaultRanges are the last-octet ranges scanned when none are configured.
var DefaultRanges = []config.OctetRange{{Start: 36, End: 48}, {Start: 68, End: 74}}

// Puller pulls a short clip of a stream; nil means the address plays. *probe.Runner
// implements it.
type Puller interface {
	Pull(ctx context.Context, streamURL string) error
}

// Locator is safe for concurrent use once built.
type Locator struct {
	Puller     Puller
	Include    []string // name keywords; empty means every channel
	Exclude    []string // exact names
	OffsetDays int
	Ranges     []config.OctetRange
	Now        func() time.Time
	Metrics    *metrics.Metrics
}

// New builds a Locator from cfg and tables.
func New(cfg *config.Config, tables *config.Tables, p Puller, m *metrics.Metrics) *Locator {
	return &Locator{
		Puller:     p,
		Include:    tables.PlaybackInclude,
		Exclude:    tables.PlaybackExclude,
		OffsetDays: cfg.PlaybackOffsetDays,
		Ranges:     cfg.OctetRanges,
		Now:        time.Now,
		Metrics:    m,
	}
}

// Eligible reports whether ch has a template and passes the include and exclude lists.
func (l *Locator) Eligible(ch catalog.Channel) bool {
	if ch.PlaybackTemplate == "" || ch.ChannelName == "" {
		return false
	}
	for _, name := range l.Exclude {
		if ch.ChannelName == name {
			return false
		}
	}
	if len(l.Include) == 0 {
		return true
	}
	for _, kw := range l.Include {
		if strings.Contains(ch.ChannelName, kw) {
			return true
		}
	}
	return false
}

// Locate returns ch with a working playback template. The unfilled template's host is
// rewritten only when the octet scan found a replacement; the placeholders are kept.
// Ineligible channels are returned unchanged with no diagnostic.
func (l *Locator) Locate(ctx context.Context, ch catalog.Channel) (catalog.Channel, *catalog.Diagnostic) {
	if !l.Eligible(ch) {
		return ch, nil
	}
	begin, end := Window(l.now(), l.OffsetDays)
	filled := Fill(ch.PlaybackTemplate, begin, end)
	if err := l.Puller.Pull(ctx, filled); err == nil {
		l.Metrics.Channel("locate", "direct")
		return ch, nil
	}
	octet, ok := l.Scan(ctx, filled)
	if !ok {
		l.Metrics.Channel("locate", string(catalog.PlaybackUnreachable))
		return ch, &catalog.Diagnostic{
			Kind:    catalog.PlaybackUnreachable,
			Channel: ch.ChannelName,
			Message: fmt.Sprintf("no playable catch-up host (offset %d days, ranges %s)", l.OffsetDays, rangesString(l.ranges())),
		}
	}
	if u, ok := ReplaceLastOctet(ch.PlaybackTemplate, octet); ok {
		ch.PlaybackTemplate = u
	}
	l.Metrics.Channel("locate", "located")
	return ch, nil
}

// Scan tries filledURL with each last octet of each range, ranges in order and octets
// ascending, and returns the first octet that plays.
func (l *Locator) Scan(ctx context.Context, filledURL string) (int, bool) {
	for _, r := range l.ranges() {
		for o := r.Start; o <= r.End; o++ {
			if ctx.Err() != nil {
				return 0, false
			}
			candidate, ok := ReplaceLastOctet(filledURL, o)
			if !ok {
				return 0, false
			}
			l.Metrics.ScanCandidate()
			if err := l.Puller.Pull(ctx, candidate); err == nil {
				return o, true
			}
		}
	}
	return 0, false
}

func (l *Locator) ranges() []config.OctetRange {
	if len(l.Ranges) == 0 {
		return DefaultRanges
	}
	return l.Ranges
}

func (l *Locator) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

// Window returns the begin and end stamps for a catch-up request made at now:
// begin = now - offsetDays - 30m, end = now + offsetDays.
func Window(now time.Time, offsetDays int) (begin, end string) {
	off := time.Duration(offsetDays) * 24 * time.Hour
	return now.Add(-off - 30*time.Minute).Format(TimeLayout), now.Add(off).Format(TimeLayout)
}

// Fill substitutes the begin and end placeholders of template.
func Fill(template, begin, end string) string {
	return strings.NewReplacer(BeginPlaceholder, begin, EndPlaceholder, end).Replace(template)
}

// ReplaceLastOctet sets the last octet of the IPv4 host in rawURL. Only the authority is
// touched, so templates with placeholder braces in the query are safe. It fails when the
// host is not a dotted IPv4 address or octet is outside 0-255.
func ReplaceLastOctet(rawURL string, octet int) (string, bool) {
	if octet < 0 || octet > 255 {
		return "", false
	}
	i := strings.Index(rawURL, "://")
	if i < 0 {
		return "", false
	}
	start := i + 3
	end := len(rawURL)
	if j := strings.IndexAny(rawURL[start:], "/?#"); j >= 0 {
		end = start + j
	}
	hostStart := start
	if at := strings.LastIndex(rawURL[start:end], "@"); at >= 0 {
		hostStart = start + at + 1
	}
	hostEnd := end
	if c := strings.IndexByte(rawURL[hostStart:end], ':'); c >= 0 {
		hostEnd = hostStart + c
	}
	host := rawURL[hostStart:hostEnd]
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return "", false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
	}
	parts[3] = strconv.Itoa(octet)
	return rawURL[:hostStart] + strings.Join(parts, ".") + rawURL[hostEnd:], true
}

func rangesString(rs []config.OctetRange) string {
	s := make([]string, len(rs))
	for i, r := range rs {
		s[i] = r.String()
	}
	return strings.Join(s, ",")
}
