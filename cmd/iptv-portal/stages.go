package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapetech/iptvportal/internal/catalog"
	"github.com/snapetech/iptvportal/internal/config"
	"github.com/snapetech/iptvportal/internal/history"
	"github.com/snapetech/iptvportal/internal/metrics"
	"github.com/snapetech/iptvportal/internal/pipeline"
	"github.com/snapetech/iptvportal/internal/playback"
	"github.com/snapetech/iptvportal/internal/playlist"
	"github.com/snapetech/iptvportal/internal/portal"
	"github.com/snapetech/iptvportal/internal/probe"
	"github.com/snapetech/iptvportal/internal/resolver"
)

// app wires config, tables and the external tool runner into the pipeline stages.
type app struct {
	cfg     *config.Config
	tables  *config.Tables
	runner  *probe.Runner
	metrics *metrics.Metrics
	pipe    *pipeline.Pipeline
}

func newApp(cfg *config.Config, tables *config.Tables) *app {
	m := metrics.New()
	r := &probe.Runner{
		FFprobePath:    cfg.FFprobePath,
		FFmpegPath:     cfg.FFmpegPath,
		ProbeTimeout:   cfg.ProbeTimeout,
		PullTimeout:    cfg.PullTimeout,
		PullDuration:   cfg.PullDuration,
		RedirectSuffix: cfg.RedirectSuffix,
		Limiter:        probe.NewLimiter(cfg.ToolRate),
		Metrics:        m,
	}
	return &app{
		cfg:     cfg,
		tables:  tables,
		runner:  r,
		metrics: m,
		pipe: &pipeline.Pipeline{
			Resolver:       resolver.New(cfg, tables, r, m),
			Locator:        playback.New(cfg, tables, r, m),
			ResolveWorkers: cfg.ResolveWorkers,
			LocateWorkers:  cfg.LocateWorkers,
			Metrics:        m,
		},
	}
}

func (a *app) requireConfig() error {
	return a.cfg.Validate()
}

func (a *app) rawPath() string   { return a.cfg.DataPath(a.cfg.RawFile) }
func (a *app) finalPath() string { return a.cfg.DataPath(a.cfg.FinalFile) }

func (a *app) loadRaw() ([]catalog.RawChannel, error) {
	raw, err := catalog.LoadRaw(a.rawPath())
	if err != nil {
		return nil, fmt.Errorf("load %s (run fetch first): %w", a.rawPath(), err)
	}
	return raw, nil
}

func (a *app) loadFinal() ([]catalog.Channel, error) {
	final, err := catalog.LoadChannels(a.finalPath())
	if err != nil {
		return nil, fmt.Errorf("load %s (run resolve first): %w", a.finalPath(), err)
	}
	return final, nil
}

// fetch runs the handshake and saves the raw catalog.
func (a *app) fetch(ctx context.Context) ([]catalog.RawChannel, error) {
	c := portal.NewClient(a.cfg)
	s, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.FetchChannels(ctx, s)
	if err != nil {
		return nil, err
	}
	if err := catalog.SaveRaw(a.rawPath(), raw); err != nil {
		return nil, fmt.Errorf("save raw catalog: %w", err)
	}
	log.Printf("Saved %d raw channels to %s", len(raw), a.rawPath())
	return raw, nil
}

func (a *app) resolve(ctx context.Context, raw []catalog.RawChannel) ([]catalog.Channel, error) {
	channels, rep := a.pipe.Resolve(ctx, raw)
	rep.Log()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := catalog.SaveChannels(a.finalPath(), channels); err != nil {
		return nil, fmt.Errorf("save channels: %w", err)
	}
	log.Printf("Saved %d channels to %s", len(channels), a.finalPath())
	return channels, nil
}

func (a *app) locate(ctx context.Context, channels []catalog.Channel) ([]catalog.Channel, error) {
	located, rep := a.pipe.Locate(ctx, channels)
	rep.Log()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := catalog.SaveChannels(a.finalPath(), located); err != nil {
		return nil, fmt.Errorf("save channels: %w", err)
	}
	return located, nil
}

func (a *app) resolveSaved(ctx context.Context) error {
	raw, err := a.loadRaw()
	if err != nil {
		return err
	}
	_, err = a.resolve(ctx, raw)
	return err
}

func (a *app) playbackSaved(ctx context.Context) error {
	final, err := a.loadFinal()
	if err != nil {
		return err
	}
	_, err = a.locate(ctx, final)
	return err
}

func (a *app) playlistsSaved() error {
	final, err := a.loadFinal()
	if err != nil {
		return err
	}
	return a.writePlaylists(final)
}

// all runs every stage and returns the final channels.
func (a *app) all(ctx context.Context, locate bool) ([]catalog.Channel, error) {
	raw, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}
	channels, err := a.resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	if locate {
		if channels, err = a.locate(ctx, channels); err != nil {
			return nil, err
		}
	}
	if err := a.writePlaylists(channels); err != nil {
		return nil, err
	}
	if err := a.recordList(ctx, history.Names(raw), true); err != nil {
		return nil, err
	}
	return channels, nil
}

func (a *app) playlistOptions() playlist.Options {
	return playlist.Options{
		URLTVG:       a.cfg.URLTVG,
		LogoBase:     a.cfg.LogoBase,
		UdpxyBaseURL: a.cfg.UdpxyBaseURL,
		AreaCode:     a.cfg.AreaCode,
	}
}

func (a *app) playlistServer() *playlist.Server {
	return &playlist.Server{
		Options: a.playlistOptions(),
		Exclude: a.tables.ExcludePublic,
		Order:   a.tables.SortOrder,
		HDTag:   a.tables.HDTag,
	}
}

// writePlaylists writes the public and private playlist of each mode plus the Markdown table.
func (a *app) writePlaylists(channels []catalog.Channel) error {
	opts := a.playlistOptions()
	audiences := []struct {
		private bool
		exclude []string
	}{
		{false, a.tables.ExcludePublic},
		{true, a.tables.ExcludePrivate},
	}
	for _, aud := range audiences {
		ordered := playlist.Order(playlist.Filter(channels, aud.exclude), a.tables.SortOrder, a.tables.HDTag)
		filtered := len(aud.exclude) > 0
		for _, mode := range []playlist.Mode{playlist.Unicast, playlist.Multicast} {
			name := playlist.FileName(mode, aud.private, filtered, a.cfg.Area)
			err := writeFile(filepath.Join(a.cfg.PlaylistDir, name), func(w io.Writer) error {
				return playlist.Write(w, ordered, mode, opts)
			})
			if err != nil {
				return err
			}
		}
	}
	md := filepath.Join(a.cfg.PlaylistDir, a.cfg.MarkdownFile)
	ordered := playlist.Order(channels, a.tables.SortOrder, a.tables.HDTag)
	if err := writeFile(md, func(w io.Writer) error {
		return playlist.WriteMarkdown(w, ordered, a.tables.ExcludePublic, time.Now())
	}); err != nil {
		return err
	}
	log.Printf("Wrote playlists for %d channels to %s", len(channels), a.cfg.PlaylistDir)
	return nil
}

func (a *app) unused() error {
	raw, err := a.loadRaw()
	if err != nil {
		return err
	}
	path := filepath.Join(a.cfg.PlaylistDir, "unused.m3u")
	if err := writeFile(path, func(w io.Writer) error {
		return playlist.WriteUnused(w, raw, a.cfg.AreaCode, a.cfg.UdpxyBaseURL)
	}); err != nil {
		return err
	}
	free, _, _ := playlist.UnusedGroups(raw)
	log.Printf("Wrote %d unused multicast groups to %s", len(free), path)
	return nil
}

// list compares the current raw catalog with the previous run. With write set the change
// log, channel list and history database are updated.
func (a *app) list(ctx context.Context, write bool) error {
	raw, err := a.loadRaw()
	if err != nil {
		return err
	}
	return a.recordList(ctx, history.Names(raw), write)
}

func (a *app) recordList(ctx context.Context, names []string, write bool) error {
	listPath := a.cfg.DataPath(a.cfg.ChannelListFile)
	prev, err := history.ReadList(listPath)
	if err != nil {
		return fmt.Errorf("read channel list: %w", err)
	}
	var store *history.Store
	if a.cfg.HistoryDB != "" {
		if store, err = history.Open(a.cfg.HistoryDB); err != nil {
			return err
		}
		defer store.Close()
		if p, err := store.Previous(ctx); err != nil {
			return err
		} else if p != nil {
			prev = p
		}
	}
	change := history.Diff(prev, names)
	log.Printf("Channel list: %s", change)
	if !write {
		return nil
	}
	now := time.Now()
	if change.Changed {
		if err := history.AppendChangeLog(a.cfg.DataPath(a.cfg.ChangeLogFile), change, now); err != nil {
			return fmt.Errorf("change log: %w", err)
		}
		if err := history.WriteList(listPath, names); err != nil {
			return fmt.Errorf("write channel list: %w", err)
		}
	}
	if store != nil {
		id, err := store.Record(ctx, names, change, now)
		if err != nil {
			return err
		}
		log.Printf("Recorded run %s (%d channels)", id, len(names))
	}
	return nil
}

func (a *app) authTest(ctx context.Context) error {
	if a.cfg.AuthTestChannel == "" {
		return fmt.Errorf("IPTV_PORTAL_AUTH_TEST_CHANNEL not set")
	}
	raw, err := a.loadRaw()
	if err != nil {
		return err
	}
	res, err := a.pipe.Resolver.CheckAuth(ctx, raw, a.cfg.AuthTestChannel, a.cfg.AuthRequiredPrefix)
	if err != nil {
		return err
	}
	if res.Required {
		log.Printf("Auth test %s: unicast requires authentication (redirect %q)", res.Channel, res.Target)
	} else {
		log.Printf("Auth test %s: unicast open, redirects to %s", res.Channel, res.Target)
	}
	return nil
}

// inspect runs ffprobe over every unicast address and saves the stream details.
func (a *app) inspect(ctx context.Context) error {
	final, err := a.loadFinal()
	if err != nil {
		return err
	}
	infos := make([]probe.StreamInfo, len(final))
	g := new(errgroup.Group)
	g.SetLimit(max(a.cfg.ResolveWorkers, 1))
	for i, ch := range final {
		if ch.UnicastLiveURL == "" {
			infos[i] = probe.StreamInfo{URL: ch.MulticastURL, Error: "no unicast address"}
			continue
		}
		g.Go(func() error {
			info, err := a.runner.Info(ctx, ch.UnicastLiveURL)
			if err != nil {
				info = probe.StreamInfo{URL: ch.UnicastLiveURL, Error: err.Error()}
			}
			infos[i] = info
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]probe.StreamInfo, len(final))
	levels := map[string]int{}
	for i, ch := range final {
		out[ch.ChannelName] = infos[i]
		if infos[i].Level != "" {
			levels[infos[i].Level]++
		}
	}
	path := a.cfg.DataPath("inspect.json")
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFile(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return err
	}
	log.Printf("Inspected %d channels (%v) -> %s", len(final), levels, path)
	return nil
}

func (a *app) writeMetrics() {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		log.Printf("Write metrics: %v", err)
	}
}

// writeFile renders into memory and replaces path atomically.
func writeFile(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
