package playlist

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/snapetech/iptvportal/internal/catalog"
)

var ipv4Re = regexp.MustCompile(`\b(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})(?::(\d+))?`)

// UnusedGroups returns the last-octet values 0-255 not used by any raw multicast channel,
// together with the a.b prefix and port of the first multicast address seen
// (239.253 and 8000 when there is none).
func UnusedGroups(raw []catalog.RawChannel) (free []int, prefix, port string) {
	g := scanGroups(raw)
	return g.free(), g.prefix, g.port
}

type groups struct {
	used                [256]bool
	prefix, third, port string
}

func scanGroups(raw []catalog.RawChannel) groups {
	g := groups{prefix: "239.253", third: "240", port: "8000"}
	seen := false
	for _, ch := range raw {
		m := ipv4Re.FindStringSubmatch(ch.ChannelURL)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[4])
		if err != nil || n > 255 {
			continue
		}
		g.used[n] = true
		if !seen && ch.IsMulticast() {
			seen = true
			g.prefix, g.third = m[1]+"."+m[2], m[3]
			if m[5] != "" {
				g.port = m[5]
			}
		}
	}
	return g
}

func (g groups) free() []int {
	var out []int
	for i, u := range g.used {
		if !u {
			out = append(out, i)
		}
	}
	return out
}

// WriteUnused writes an M3U with one entry per unused multicast group in area areaCode,
// so the groups can be scanned by a player. areaCode 0 keeps the portal's third octet.
func WriteUnused(w io.Writer, raw []catalog.RawChannel, areaCode int, udpxyBase string) error {
	g := scanGroups(raw)
	area := g.third
	if areaCode > 0 {
		area = strconv.Itoa(areaCode)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#EXTM3U\n")
	for _, n := range g.free() {
		path := fmt.Sprintf("rtp/%s.%s.%d:%s", g.prefix, area, n, g.port)
		fmt.Fprintf(bw, "#EXTINF:-1 ,%d\n%s\n", n, Udpxy(udpxyBase, path))
	}
	return bw.Flush()
}
