package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MulticastScheme is the locator scheme the portal uses for joinable multicast channels.
const MulticastScheme = "igmp://"

// RawChannel is one jsSetConfig('Channel', ...) entry exactly as the portal advertised it.
// Attrs keeps every attribute so nothing is lost when raw.json is written back.
type RawChannel struct {
	ChannelID     string
	ChannelName   string
	UserChannelID string
	ChannelURL    string // multicast locator, igmp://
	ChannelSDP    string // optional session description text
	Attrs         map[string]string
}

// RawFromAttrs builds a RawChannel from a parsed key="value" attribute list.
func RawFromAttrs(attrs map[string]string) RawChannel {
	return RawChannel{
		ChannelID:     attrs["ChannelID"],
		ChannelName:   attrs["ChannelName"],
		UserChannelID: attrs["UserChannelID"],
		ChannelURL:    attrs["ChannelURL"],
		ChannelSDP:    attrs["ChannelSDP"],
		Attrs:         attrs,
	}
}

// IsMulticast reports whether the channel carries an igmp:// locator.
func (r RawChannel) IsMulticast() bool {
	return strings.HasPrefix(r.ChannelURL, MulticastScheme)
}

// DisplayName returns ChannelName or "?" when the portal omitted it.
func (r RawChannel) DisplayName() string {
	if r.ChannelName == "" {
		return "?"
	}
	return r.ChannelName
}

func (r RawChannel) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(r.Attrs)+5)
	for k, v := range r.Attrs {
		m[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("ChannelID", r.ChannelID)
	set("ChannelName", r.ChannelName)
	set("UserChannelID", r.UserChannelID)
	set("ChannelURL", r.ChannelURL)
	set("ChannelSDP", r.ChannelSDP)
	return json.Marshal(m)
}

func (r *RawChannel) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = RawFromAttrs(m)
	return nil
}

// Channel is a resolved channel: multicast address always set, unicast live and
// catch-up template only when a redirect was found. After playback locating the
// template host may have been rewritten; the JSON keys stay the same.
type Channel struct {
	ChannelID        string `json:"ChannelID"`
	ChannelName      string `json:"ChannelName"`
	TVGID            string `json:"tvg_id"`
	TVGName          string `json:"tvg_name"`
	GroupTitle       string `json:"group_title"`
	MulticastURL     string `json:"mul_live"`
	UnicastLiveURL   string `json:"uni_live"`
	PlaybackTemplate string `json:"uni_playback"` // contains {utc:YmdHMS}/{utcend:YmdHMS} placeholders
}

// SaveRaw writes raw channels to path.
func SaveRaw(path string, raw []RawChannel) error {
	if raw == nil {
		raw = []RawChannel{}
	}
	return writeJSON(path, raw)
}

// LoadRaw reads raw channels from path.
func LoadRaw(path string) ([]RawChannel, error) {
	var out []RawChannel
	if err := readJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveChannels writes resolved channels to path.
func SaveChannels(path string, channels []Channel) error {
	if channels == nil {
		channels = []Channel{}
	}
	return writeJSON(path, channels)
}

// LoadChannels reads resolved channels from path.
func LoadChannels(path string) ([]Channel, error) {
	var out []Channel
	if err := readJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("catalog load %s: %w", path, err)
	}
	return nil
}

// writeJSON writes v to path as indented JSON using a temp-file-then-rename strategy
// so readers never see a partially-written file (atomic on most Unix filesystems).
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog save: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.json.tmp")
	if err != nil {
		return fmt.Errorf("catalog save: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("catalog save: write: %w", writeErr)
		}
		return fmt.Errorf("catalog save: close: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: rename: %w", err)
	}
	return nil
}
