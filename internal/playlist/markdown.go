package playlist

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/snapetech/iptvportal/internal/catalog"
)

// TableZone is the clock the channel table's update time is shown in.
var TableZone = time.FixedZone("UTC+8", 8*60*60)

var groupNumberRe = regexp.MustCompile(`\.(\d+):\d+$`)

// WriteMarkdown writes the channel table: name, channel number and multicast group number.
// Channels whose tvg-name starts with an entry of exclude are left out and not counted.
func WriteMarkdown(w io.Writer, channels []catalog.Channel, exclude []string, now time.Time) error {
	var rows []catalog.Channel
	for _, ch := range channels {
		if !hasAnyPrefix(ch.TVGName, exclude) {
			rows = append(rows, ch)
		}
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "## 频道列表\n\n")
	fmt.Fprintf(bw, "**更新时间**: %s UTC+8\n\n", now.In(TableZone).Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "**频道总数**: %d\n\n", len(rows))
	fmt.Fprintf(bw, "| 频道名称 | 频道号 | 组播号 |\n")
	fmt.Fprintf(bw, "|----------|--------|--------|\n")
	for _, ch := range rows {
		fmt.Fprintf(bw, "| %s | %s | %s |\n", ch.ChannelName, ch.TVGID, GroupNumber(ch.MulticastURL))
	}
	return bw.Flush()
}

// GroupNumber returns the last octet of an rtp:// multicast address, or "".
func GroupNumber(mulLive string) string {
	if !strings.HasPrefix(mulLive, "rtp://") {
		return ""
	}
	if m := groupNumberRe.FindStringSubmatch(mulLive); m != nil {
		return m[1]
	}
	return ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
