package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OctetRange is an inclusive range of last-octet values tried by the playback scan.
type OctetRange struct {
	Start int
	End   int
}

func (r OctetRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// Default timeshift and playback path templates. {utc:YmdHMS} and {utcend:YmdHMS} are the
// begin/end placeholders filled at play time; {hostport}, {index} and {timeshift} are
// filled once when the template is derived from a unicast redirect.
const (
	DefaultTimeshift        = "{utc:YmdHMS}GMT-{utcend:YmdHMS}GMT"
	DefaultPlaybackTemplate = "{hostport}/iptv/Tvod/iptv/001/001/{index}.rsc?tvdr={timeshift}"
)

// Config holds portal identity, probe tuning, worker pool sizes and output paths.
// Load from env (call LoadEnvFile(".env") first); lookup tables come from LoadTables.
// A Config is built once at startup and treated as read-only afterwards.
type Config struct {
	// Portal (EAS = authentication server, EPG = program guide / catalog server)
	EASHost    string
	EASPort    string
	EPGHost    string // fallback when the login page has no form action
	EPGPort    string
	UserID     string
	STBID      string
	DeviceIP   string // fallback when the login page has no StbIP input
	MAC        string
	CustomStr  string // trailing tag of the authenticator plaintext, e.g. "$CTC"
	EncryptKey string // at most 8 bytes; right-padded with '0'
	STBType    string
	STBVersion string
	Encoding   string // response charset label of the portal pages
	// PortalTimeout bounds each handshake step and the catalog request.
	PortalTimeout time.Duration

	// Redirect probe (ffprobe)
	FFprobePath    string
	ProbeTimeout   time.Duration
	ProbeRetries   int
	ProbeDelay     time.Duration
	RedirectSuffix string // redirect targets must end with this, e.g. "Uni.sdp"
	ResolveWorkers int
	Timeshift      string
	// PlaybackTemplate is the catch-up URL shape built from a unicast redirect.
	PlaybackTemplate string

	// Playback locate (ffmpeg pull test)
	FFmpegPath         string
	PullTimeout        time.Duration
	PullDuration       time.Duration
	LocateWorkers      int
	PlaybackOffsetDays int
	OctetRanges        []OctetRange
	// ToolRate caps external tool launches per second across all workers. 0 = unlimited.
	ToolRate float64

	// Paths
	DataDir         string
	PlaylistDir     string
	RawFile         string
	FinalFile       string
	TablesFile      string
	ChannelListFile string
	ChangeLogFile   string
	MarkdownFile    string
	HistoryDB       string // sqlite path; "" = disabled
	MetricsFile     string // prometheus textfile; "" = disabled

	// Playlist output
	UdpxyBaseURL string
	LogoBase     string
	URLTVG       string
	AreaCode     int    // replaces the third multicast octet in multicast playlists; 0 = keep
	Area         string // playlist file name suffix, e.g. "jinan"

	// Auth test
	AuthTestChannel    string
	AuthRequiredPrefix string

	// Schedule for the run subcommand (five-field cron expression).
	Schedule string
}

// Load reads config from environment.
func Load() *Config {
	c := &Config{
		EASHost:            os.Getenv("IPTV_PORTAL_EAS_HOST"),
		EASPort:            getEnv("IPTV_PORTAL_EAS_PORT", "8080"),
		EPGHost:            os.Getenv("IPTV_PORTAL_EPG_HOST"),
		EPGPort:            getEnv("IPTV_PORTAL_EPG_PORT", "8080"),
		UserID:             os.Getenv("IPTV_PORTAL_USER_ID"),
		STBID:              os.Getenv("IPTV_PORTAL_STB_ID"),
		DeviceIP:           os.Getenv("IPTV_PORTAL_DEVICE_IP"),
		MAC:                os.Getenv("IPTV_PORTAL_MAC"),
		CustomStr:          getEnv("IPTV_PORTAL_CUSTOM_STR", "$CTC"),
		EncryptKey:         os.Getenv("IPTV_PORTAL_ENCRYPT_KEY"),
		STBType:            os.Getenv("IPTV_PORTAL_STB_TYPE"),
		STBVersion:         os.Getenv("IPTV_PORTAL_STB_VERSION"),
		Encoding:           getEnv("IPTV_PORTAL_ENCODING", "gbk"),
		PortalTimeout:      getEnvDuration("IPTV_PORTAL_PORTAL_TIMEOUT", 5*time.Second),
		FFprobePath:        getEnv("IPTV_PORTAL_FFPROBE", "ffprobe"),
		ProbeTimeout:       getEnvDuration("IPTV_PORTAL_PROBE_TIMEOUT", 5*time.Second),
		ProbeRetries:       getEnvInt("IPTV_PORTAL_PROBE_RETRIES", 5),
		ProbeDelay:         getEnvDuration("IPTV_PORTAL_PROBE_DELAY", time.Second),
		RedirectSuffix:     getEnv("IPTV_PORTAL_REDIRECT_SUFFIX", "Uni.sdp"),
		ResolveWorkers:     getEnvInt("IPTV_PORTAL_RESOLVE_WORKERS", 10),
		Timeshift:          getEnv("IPTV_PORTAL_TIMESHIFT", DefaultTimeshift),
		PlaybackTemplate:   getEnv("IPTV_PORTAL_PLAYBACK_TEMPLATE", DefaultPlaybackTemplate),
		FFmpegPath:         getEnv("IPTV_PORTAL_FFMPEG", "ffmpeg"),
		PullTimeout:        getEnvDuration("IPTV_PORTAL_PULL_TIMEOUT", 3*time.Second),
		PullDuration:       getEnvDuration("IPTV_PORTAL_PULL_DURATION", time.Second),
		LocateWorkers:      getEnvInt("IPTV_PORTAL_LOCATE_WORKERS", 10),
		PlaybackOffsetDays: getEnvInt("IPTV_PORTAL_PLAYBACK_OFFSET_DAYS", 7),
		OctetRanges:        getEnvRanges("IPTV_PORTAL_OCTET_RANGES", []OctetRange{{36, 48}, {68, 74}}),
		ToolRate:           getEnvFloat("IPTV_PORTAL_TOOL_RATE", 0),
		DataDir:            getEnv("IPTV_PORTAL_DATA_DIR", "data"),
		PlaylistDir:        getEnv("IPTV_PORTAL_PLAYLIST_DIR", "playlist"),
		RawFile:            getEnv("IPTV_PORTAL_RAW_FILE", "raw.json"),
		FinalFile:          getEnv("IPTV_PORTAL_FINAL_FILE", "iptv.json"),
		TablesFile:         getEnv("IPTV_PORTAL_TABLES", "config/tables.yaml"),
		ChannelListFile:    getEnv("IPTV_PORTAL_CHANNEL_LIST", "channels.txt"),
		ChangeLogFile:      getEnv("IPTV_PORTAL_CHANGELOG", "changelog.md"),
		MarkdownFile:       getEnv("IPTV_PORTAL_MARKDOWN", "channels.md"),
		HistoryDB:          os.Getenv("IPTV_PORTAL_HISTORY_DB"),
		MetricsFile:        os.Getenv("IPTV_PORTAL_METRICS_FILE"),
		UdpxyBaseURL:       getEnv("IPTV_PORTAL_UDPXY", "http://192.168.0.1:4022"),
		LogoBase:           os.Getenv("IPTV_PORTAL_LOGO_BASE"),
		URLTVG:             os.Getenv("IPTV_PORTAL_URL_TVG"),
		AreaCode:           getEnvInt("IPTV_PORTAL_AREA_CODE", 0),
		Area:               os.Getenv("IPTV_PORTAL_AREA"),
		AuthTestChannel:    os.Getenv("IPTV_PORTAL_AUTH_TEST_CHANNEL"),
		AuthRequiredPrefix: getEnv("IPTV_PORTAL_AUTH_REQUIRED_PREFIX", "rtsp://222"),
		Schedule:           getEnv("IPTV_PORTAL_SCHEDULE", "0 3 * * *"),
	}
	if c.ProbeRetries <= 0 {
		c.ProbeRetries = 5
	}
	if c.ResolveWorkers <= 0 {
		c.ResolveWorkers = 10
	}
	if c.LocateWorkers <= 0 {
		c.LocateWorkers = 10
	}
	if c.PortalTimeout <= 0 {
		c.PortalTimeout = 5 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.PullTimeout <= 0 {
		c.PullTimeout = 3 * time.Second
	}
	if c.PlaybackOffsetDays < 0 {
		c.PlaybackOffsetDays = 7
	}
	return c
}

// Validate returns an error when settings needed to run the portal handshake are missing
// or out of range.
func (c *Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"IPTV_PORTAL_EAS_HOST": c.EASHost,
		"IPTV_PORTAL_USER_ID":  c.UserID,
		"IPTV_PORTAL_STB_ID":   c.STBID,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	if len(c.EncryptKey) > 8 {
		return fmt.Errorf("config: IPTV_PORTAL_ENCRYPT_KEY longer than 8 bytes")
	}
	for _, r := range c.OctetRanges {
		if r.Start < 0 || r.End > 255 || r.Start > r.End {
			return fmt.Errorf("config: octet range %s invalid", r)
		}
	}
	return nil
}

// EASBaseURL returns http://host:port of the authentication server.
func (c *Config) EASBaseURL() string {
	return "http://" + joinHostPort(c.EASHost, c.EASPort)
}

// EPGBaseURL returns http://host:port of the configured EPG server, or "" when unset.
func (c *Config) EPGBaseURL() string {
	if c.EPGHost == "" {
		return ""
	}
	return "http://" + joinHostPort(c.EPGHost, c.EPGPort)
}

// DataPath joins name onto DataDir.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.DataDir, name)
}

func joinHostPort(host, port string) string {
	if port == "" {
		return host
	}
	return host + ":" + port
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvRanges parses "36-48,68-74". Any malformed part falls back to defaultVal entirely.
func getEnvRanges(key string, defaultVal []OctetRange) []OctetRange {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	var out []OctetRange
	for _, part := range strings.Split(v, ",") {
		lo, hi, ok := strings.Cut(strings.TrimSpace(part), "-")
		if !ok {
			return defaultVal
		}
		a, errA := strconv.Atoi(strings.TrimSpace(lo))
		b, errB := strconv.Atoi(strings.TrimSpace(hi))
		if errA != nil || errB != nil {
			return defaultVal
		}
		out = append(out, OctetRange{Start: a, End: b})
	}
	return out
}
