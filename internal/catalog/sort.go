package catalog

import (
	"sort"
	"strconv"
)

// SortChannels orders channels ascending by numeric TVGID (the user channel number),
// keeping arrival order for equal ids. If any id fails to parse as an integer the whole
// slice is ordered lexicographically instead. The return value reports which order was used.
func SortChannels(channels []Channel) (numeric bool) {
	keys := make(map[string]int64, len(channels))
	numeric = true
	for _, c := range channels {
		n, err := strconv.ParseInt(c.TVGID, 10, 64)
		if err != nil {
			numeric = false
			break
		}
		keys[c.TVGID] = n
	}
	if numeric {
		sort.SliceStable(channels, func(i, j int) bool {
			return keys[channels[i].TVGID] < keys[channels[j].TVGID]
		})
		return true
	}
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].TVGID < channels[j].TVGID
	})
	return false
}
