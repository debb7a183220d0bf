// Package playlist writes the final channel set as M3U playlists (unicast or multicast via
// udpxy), a Markdown channel table and a list of unused multicast groups.
package playlist

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/snapetech/iptvportal/internal/catalog"
)

// Mode selects which address a playlist entry plays.
type Mode string

const (
	Unicast   Mode = "uni"
	Multicast Mode = "mul"
)

// Options control the playlist header, logos and multicast addressing.
type Options struct {
	URLTVG       string
	LogoBase     string
	UdpxyBaseURL string // "http://host:port" or a pattern containing "{}"
	AreaCode     int    // third multicast octet; 0 keeps the portal's value
}

// FileName returns the playlist file name used for mode and audience, e.g.
// "unicast-public-filtered-jinan.m3u". area may be empty.
func FileName(mode Mode, private, filtered bool, area string) string {
	name := "unicast"
	if mode == Multicast {
		name = "multicast"
	}
	if private {
		name += "-private"
	} else {
		name += "-public"
	}
	if filtered {
		name += "-filtered"
	}
	if area != "" {
		name += "-" + area
	}
	return name + ".m3u"
}

// Write writes one M3U playlist. Channels without an address for mode are skipped.
// A non-empty catch-up template is emitted as catchup="default" catchup-source.
func Write(w io.Writer, channels []catalog.Channel, mode Mode, opts Options) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#EXTM3U url-tvg=\"%s\"\n", opts.URLTVG)
	for _, ch := range channels {
		addr, err := entryURL(ch, mode, opts)
		if err != nil {
			return fmt.Errorf("playlist: %s: %w", ch.ChannelName, err)
		}
		if addr == "" {
			continue
		}
		name := attr(ch.TVGName)
		fmt.Fprintf(bw, "#EXTINF:-1 tvg-name=\"%s\" group-title=\"%s\" tvg-logo=\"%s%s.png\"",
			name, attr(ch.GroupTitle), opts.LogoBase, name)
		if ch.PlaybackTemplate != "" {
			fmt.Fprintf(bw, " catchup=\"default\" catchup-source=\"%s\"", ch.PlaybackTemplate)
		}
		fmt.Fprintf(bw, ",%s\n%s\n", strings.ReplaceAll(ch.TVGName, ",", " "), addr)
	}
	return bw.Flush()
}

func entryURL(ch catalog.Channel, mode Mode, opts Options) (string, error) {
	if mode == Unicast {
		return ch.UnicastLiveURL, nil
	}
	if ch.MulticastURL == "" {
		return "", nil
	}
	return MulticastAddress(ch.MulticastURL, opts)
}

// MulticastAddress turns rtp://a.b.c.d:port into the udpxy URL for it, replacing the third
// octet with opts.AreaCode when set.
func MulticastAddress(mulLive string, opts Options) (string, error) {
	u := mulLive
	if opts.AreaCode > 0 {
		var err error
		if u, err = ReplaceThirdOctet(u, opts.AreaCode); err != nil {
			return "", err
		}
	}
	return Udpxy(opts.UdpxyBaseURL, strings.Replace(u, "rtp://", "rtp/", 1)), nil
}

// Udpxy joins a udpxy base and a "rtp/..." path. A base containing "{}" is used as a pattern.
func Udpxy(base, path string) string {
	if strings.Contains(base, "{}") {
		return strings.Replace(base, "{}", path, 1)
	}
	return strings.TrimSuffix(base, "/") + "/" + path
}

// ReplaceThirdOctet sets the third octet of the IPv4 host of scheme://a.b.c.d[:port].
func ReplaceThirdOctet(addr string, b int) (string, error) {
	if b < 0 || b > 255 {
		return "", fmt.Errorf("octet %d out of range", b)
	}
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok {
		scheme, rest = "", addr
	}
	host, port, hasPort := strings.Cut(rest, ":")
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("%q is not an IPv4 address", host)
	}
	parts[2] = strconv.Itoa(b)
	out := strings.Join(parts, ".")
	if scheme != "" {
		out = scheme + "://" + out
	}
	if hasPort {
		out += ":" + port
	}
	return out, nil
}

// Filter drops channels whose ChannelName is in exclude.
func Filter(channels []catalog.Channel, exclude []string) []catalog.Channel {
	if len(exclude) == 0 {
		return channels
	}
	skip := make(map[string]bool, len(exclude))
	for _, n := range exclude {
		skip[n] = true
	}
	out := make([]catalog.Channel, 0, len(channels))
	for _, ch := range channels {
		if !skip[ch.ChannelName] {
			out = append(out, ch)
		}
	}
	return out
}

// Order puts channels named in order first (in that order, duplicates kept together), then
// the remaining names containing hdTag, then the rest. Without an order list the input
// is returned unchanged.
func Order(channels []catalog.Channel, order []string, hdTag string) []catalog.Channel {
	if len(order) == 0 {
		return channels
	}
	bucket := make(map[string][]catalog.Channel)
	var names []string
	for _, ch := range channels {
		if _, ok := bucket[ch.ChannelName]; !ok {
			names = append(names, ch.ChannelName)
		}
		bucket[ch.ChannelName] = append(bucket[ch.ChannelName], ch)
	}
	out := make([]catalog.Channel, 0, len(channels))
	for _, name := range order {
		out = append(out, bucket[name]...)
		delete(bucket, name)
	}
	var hd, rest []catalog.Channel
	for _, name := range names {
		for _, ch := range bucket[name] {
			if hdTag != "" && strings.Contains(ch.ChannelName, hdTag) {
				hd = append(hd, ch)
			} else {
				rest = append(rest, ch)
			}
		}
	}
	out = append(out, hd...)
	return append(out, rest...)
}

func attr(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
