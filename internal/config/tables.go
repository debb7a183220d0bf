package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GroupRule maps a channel-name keyword to a playlist group title.
type GroupRule struct {
	Keyword string `yaml:"keyword"`
	Title   string `yaml:"title"`
}

// Tables holds the rename, grouping and filtering tables. Loaded once at startup and
// shared read-only by every worker; nothing mutates a Tables after LoadTables returns.
type Tables struct {
	// QualityTags are stripped from channel names when deriving tvg-name. Order matters:
	// longer tags that contain shorter ones must come first.
	QualityTags []string `yaml:"quality_tags"`
	// HDTag marks high-definition names; used by the playlist sort fallback.
	HDTag string `yaml:"hd_tag"`
	// GroupTitles are tried in order; the first keyword contained in the name wins.
	GroupTitles  []GroupRule `yaml:"group_titles"`
	DefaultGroup string      `yaml:"default_group"`

	TVGNameByID     map[string]string `yaml:"tvg_name_by_id"`
	TVGNameByName   map[string]string `yaml:"tvg_name_by_name"`
	ChannelNameByID map[string]string `yaml:"channel_name_by_id"`
	PlaybackInclude []string          `yaml:"playback_include"`
	PlaybackExclude []string          `yaml:"playback_exclude"`
	ExcludePublic   []string          `yaml:"exclude_public"`
	ExcludePrivate  []string          `yaml:"exclude_private"`
	SortOrder       []string          `yaml:"sort_order"`
	SortFile        string            `yaml:"sort_file"`
}

// DefaultTables returns the tables used when no file is configured.
func DefaultTables() *Tables {
	return &Tables{
		QualityTags:     []string{"超高清", "高清", "标清"},
		HDTag:           "高清",
		DefaultGroup:    "其他频道",
		TVGNameByID:     map[string]string{},
		TVGNameByName:   map[string]string{},
		ChannelNameByID: map[string]string{},
	}
}

// LoadTables reads the YAML table file at path. A missing file yields DefaultTables.
// Unset fields keep their defaults.
func LoadTables(path string) (*Tables, error) {
	t := DefaultTables()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("tables: %w", err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("tables %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("tables %s: %w", path, err)
	}
	if t.SortFile != "" && len(t.SortOrder) == 0 {
		order, err := readSortFile(t.SortFile)
		if err != nil {
			return nil, fmt.Errorf("tables: sort file: %w", err)
		}
		t.SortOrder = order
	}
	return t, nil
}

func (t *Tables) validate() error {
	for i, g := range t.GroupTitles {
		if strings.TrimSpace(g.Keyword) == "" || strings.TrimSpace(g.Title) == "" {
			return fmt.Errorf("group_titles[%d]: keyword and title required", i)
		}
	}
	if t.DefaultGroup == "" {
		t.DefaultGroup = "其他频道"
	}
	if t.TVGNameByID == nil {
		t.TVGNameByID = map[string]string{}
	}
	if t.TVGNameByName == nil {
		t.TVGNameByName = map[string]string{}
	}
	if t.ChannelNameByID == nil {
		t.ChannelNameByID = map[string]string{}
	}
	return nil
}

// readSortFile returns non-empty, non-comment lines of path.
func readSortFile(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}
