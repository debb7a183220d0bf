package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEnvFile_absent(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("absent .env: %v", err)
	}
}

func TestLoadEnvFile_portalIdentity(t *testing.T) {
	t.Setenv("IPTV_PORTAL_STB_ID", "")
	t.Setenv("IPTV_PORTAL_MAC", "")
	path := writeEnv(t, "# STB identity\nIPTV_PORTAL_STB_ID=0010029900E0\nIPTV_PORTAL_MAC=AA:BB:CC:DD:EE:FF\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	cfg := Load()
	if cfg.STBID != "0010029900E0" || cfg.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("STBID=%q MAC=%q", cfg.STBID, cfg.MAC)
	}
}

func TestLoadEnvFile_quotedCustomStr(t *testing.T) {
	t.Setenv("IPTV_PORTAL_CUSTOM_STR", "")
	path := writeEnv(t, `IPTV_PORTAL_CUSTOM_STR='$CTC'`)
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("IPTV_PORTAL_CUSTOM_STR"); got != "$CTC" {
		t.Errorf("IPTV_PORTAL_CUSTOM_STR = %q, want $CTC", got)
	}
}

func TestLoadEnvFile_overridesExisting(t *testing.T) {
	t.Setenv("IPTV_PORTAL_USER_ID", "old")
	if err := LoadEnvFile(writeEnv(t, "IPTV_PORTAL_USER_ID=new\n")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("IPTV_PORTAL_USER_ID"); got != "new" {
		t.Errorf("IPTV_PORTAL_USER_ID = %q, want new", got)
	}
}
