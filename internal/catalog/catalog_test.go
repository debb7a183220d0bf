package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRawChannel_jsonKeepsUnknownAttrs(t *testing.T) {
	in := `{"ChannelID":"101","ChannelName":"CCTV1高清","UserChannelID":"1","ChannelURL":"igmp://239.253.240.12:8000","TimeShift":"1"}`
	var r RawChannel
	if err := json.Unmarshal([]byte(in), &r); err != nil {
		t.Fatal(err)
	}
	if r.ChannelID != "101" || r.UserChannelID != "1" || r.ChannelURL != "igmp://239.253.240.12:8000" {
		t.Errorf("RawChannel = %+v", r)
	}
	if !r.IsMulticast() {
		t.Error("IsMulticast() = false")
	}
	out, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]string
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if m["TimeShift"] != "1" || m["ChannelName"] != "CCTV1高清" {
		t.Errorf("round trip lost attrs: %v", m)
	}
}

func TestRawChannel_notMulticast(t *testing.T) {
	for _, u := range []string{"", "rtsp://1.2.3.4/x", "http://igmp://"} {
		if (RawChannel{ChannelURL: u}).IsMulticast() {
			t.Errorf("IsMulticast(%q) = true", u)
		}
	}
	if got := (RawChannel{}).DisplayName(); got != "?" {
		t.Errorf("DisplayName() = %q", got)
	}
}

func TestSaveLoadChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "iptv.json")
	in := []Channel{{ChannelID: "101", ChannelName: "A", TVGID: "1", MulticastURL: "rtp://239.1.1.1:8000", PlaybackTemplate: "rtsp://h/x?tvdr={utc:YmdHMS}"}}
	if err := SaveChannels(path, in); err != nil {
		t.Fatalf("SaveChannels: %v", err)
	}
	out, err := LoadChannels(path)
	if err != nil {
		t.Fatalf("LoadChannels: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("LoadChannels = %+v", out)
	}
	data, _ := os.ReadFile(path)
	var keys []map[string]any
	_ = json.Unmarshal(data, &keys)
	if _, ok := keys[0]["mul_live"]; !ok {
		t.Errorf("expected mul_live key in %s", data)
	}
}

func TestSave_atomic_noPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.json")
	if err := SaveRaw(path, []RawChannel{{ChannelID: "x"}}); err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "raw.json" {
			t.Errorf("unexpected file after save: %s", e.Name())
		}
	}
	raw, err := LoadRaw(path)
	if err != nil || len(raw) != 1 || raw[0].ChannelID != "x" {
		t.Errorf("LoadRaw = %+v, %v", raw, err)
	}
}

func TestSaveRaw_nilWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.json")
	if err := SaveRaw(path, nil); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "[]" {
		t.Errorf("file = %q, want []", data)
	}
}

func TestSortChannels_numericStable(t *testing.T) {
	chs := []Channel{
		{TVGID: "10", ChannelName: "a"},
		{TVGID: "2", ChannelName: "b"},
		{TVGID: "10", ChannelName: "c"},
		{TVGID: "1", ChannelName: "d"},
	}
	if !SortChannels(chs) {
		t.Fatal("expected numeric order")
	}
	got := ""
	for _, c := range chs {
		got += c.ChannelName
	}
	if got != "dbac" {
		t.Errorf("order = %q, want dbac", got)
	}
}

func TestSortChannels_lexicographicFallback(t *testing.T) {
	chs := []Channel{{TVGID: "10"}, {TVGID: "9"}, {TVGID: "x1"}, {TVGID: "2"}}
	if SortChannels(chs) {
		t.Fatal("expected lexicographic fallback")
	}
	want := []string{"10", "2", "9", "x1"}
	for i, c := range chs {
		if c.TVGID != want[i] {
			t.Errorf("chs[%d].TVGID = %q, want %q", i, c.TVGID, want[i])
		}
	}
}
