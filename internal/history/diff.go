// Package history tracks the advertised channel list between runs: a plain name list and
// Markdown change log next to the data, and optionally a sqlite run log.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/snapetech/iptvportal/internal/catalog"
)

// Change is the difference between two channel name lists.
type Change struct {
	Added   []string
	Removed []string
	// Changed is true when the lists differ at all, including order only.
	Changed bool
}

// Names returns the ChannelName of each raw channel that has one, in catalog order.
func Names(raw []catalog.RawChannel) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r.ChannelName != "" {
			out = append(out, r.ChannelName)
		}
	}
	return out
}

// Diff compares the previous and current name lists.
func Diff(prev, cur []string) Change {
	c := Change{Changed: !slices.Equal(prev, cur)}
	if !c.Changed {
		return c
	}
	for _, n := range cur {
		if !slices.Contains(prev, n) {
			c.Added = append(c.Added, n)
		}
	}
	for _, n := range prev {
		if !slices.Contains(cur, n) {
			c.Removed = append(c.Removed, n)
		}
	}
	return c
}

func (c Change) String() string {
	if !c.Changed {
		return "channel list has not changed"
	}
	var parts []string
	if len(c.Added) > 0 {
		parts = append(parts, "added: "+strings.Join(c.Added, ", "))
	}
	if len(c.Removed) > 0 {
		parts = append(parts, "removed: "+strings.Join(c.Removed, ", "))
	}
	if len(parts) == 0 {
		return "channel order changed"
	}
	return strings.Join(parts, "; ")
}

// ReadList reads one name per line. A missing file is an empty list.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, strings.TrimSpace(sc.Text()))
	}
	return out, sc.Err()
}

// WriteList replaces path with names, one per line.
func WriteList(path string, names []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// AppendChangeLog appends a dated Markdown entry for c to path. Unchanged lists and
// order-only changes write nothing.
func AppendChangeLog(path string, c Change, now time.Time) error {
	if len(c.Added) == 0 && len(c.Removed) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "#### 时间: %s\n\n", now.Format("2006-01-02"))
	if len(c.Added) > 0 {
		fmt.Fprintf(&b, "上线频道: %s\n\n", strings.Join(c.Added, ", "))
	}
	if len(c.Removed) > 0 {
		fmt.Fprintf(&b, "下线频道: %s\n\n", strings.Join(c.Removed, ", "))
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
