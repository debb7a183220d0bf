// Command iptv-portal logs into an IPTV STB portal, resolves its channel catalog and writes
// M3U playlists.
//
//	fetch     Handshake with the portal and save the raw catalog
//	resolve   Probe every multicast channel for its unicast redirect
//	playback  Locate a working catch-up host for every resolved channel
//	m3u       Write unicast/multicast playlists and the Markdown channel table
//	list      Write the channel name list and append the change log
//	diff      Print the change against the previous run without writing
//	unused    Write an M3U of multicast groups the catalog does not use
//	authtest  Probe one channel and report whether unicast needs authentication
//	inspect   ffprobe every resolved channel for service name and resolution
//	check     Preflight: tools on PATH and portal reachable
//	all       fetch, resolve, playback, m3u, list
//	run       all on a cron schedule, optionally serving the playlists
//	serve     Serve the saved playlists over HTTP
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/snapetech/iptvportal/internal/config"
	"github.com/snapetech/iptvportal/internal/health"
	"github.com/snapetech/iptvportal/internal/playlist"
)

const usage = `Usage: %s <command> [flags]
  fetch     Handshake with the portal and save the raw catalog
  resolve   Probe multicast channels for unicast redirects
  playback  Locate catch-up hosts for resolved channels
  m3u       Write playlists and the Markdown channel table
  list      Write the channel list and append the change log
  diff      Print the channel change without writing
  unused    Write an M3U of unused multicast groups
  authtest  Report whether unicast needs authentication
  inspect   ffprobe resolved channels for service name and resolution
  check     Preflight checks (-addr also checks a running server)
  all       fetch, resolve, playback, m3u, list
  run       all on a cron schedule (-cron), optionally serving (-addr)
  serve     Serve playlists over HTTP
`

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[iptv-portal] ")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	tablesPath := fs.String("tables", "", "Table file (default: IPTV_PORTAL_TABLES)")
	addr := fs.String("addr", "", "Listen address for serve/run, e.g. :8090")
	schedule := fs.String("cron", "", "Cron schedule for run (default: IPTV_PORTAL_SCHEDULE)")
	skipPlayback := fs.Bool("skip-playback", false, "all/run: skip the playback locate stage")
	_ = fs.Parse(args)

	cfg := config.Load()
	if *tablesPath != "" {
		cfg.TablesFile = *tablesPath
	}
	tables, err := config.LoadTables(cfg.TablesFile)
	if err != nil {
		log.Fatalf("Load tables: %v", err)
	}
	a := newApp(cfg, tables)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "fetch":
		err = a.requireConfig()
		if err == nil {
			_, err = a.fetch(ctx)
		}
	case "resolve":
		err = a.resolveSaved(ctx)
	case "playback":
		err = a.playbackSaved(ctx)
	case "m3u":
		err = a.playlistsSaved()
	case "list":
		err = a.list(ctx, true)
	case "diff":
		err = a.list(ctx, false)
	case "unused":
		err = a.unused()
	case "authtest":
		err = a.authTest(ctx)
	case "inspect":
		err = a.inspect(ctx)
	case "check":
		err = a.check(ctx, *addr)
	case "all":
		err = a.requireConfig()
		if err == nil {
			_, err = a.all(ctx, !*skipPlayback)
		}
	case "run":
		err = a.requireConfig()
		if err == nil {
			err = a.runScheduled(ctx, *schedule, *addr, !*skipPlayback)
		}
	case "serve":
		err = a.serveSaved(ctx, *addr)
	default:
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	a.writeMetrics()
	if err != nil {
		log.Printf("%s failed: %v", cmd, err)
		os.Exit(1)
	}
}

// runScheduled runs the whole pipeline once, then on every schedule tick. With addr set
// the latest channels are served between runs.
func (a *app) runScheduled(ctx context.Context, schedule, addr string, locate bool) error {
	if schedule == "" {
		schedule = a.cfg.Schedule
	}
	var srv *playlist.Server
	if addr != "" {
		srv = a.playlistServer()
		if final, err := a.loadFinal(); err == nil {
			srv.SetChannels(final)
		}
		go func() {
			if err := serveHTTP(ctx, addr, srv); err != nil {
				log.Printf("Serve failed: %v", err)
			}
		}()
	}

	refresh := func() {
		channels, err := a.all(ctx, locate)
		if err != nil {
			log.Printf("Refresh failed: %v", err)
			return
		}
		if srv != nil {
			srv.SetChannels(channels)
		}
		a.writeMetrics()
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, refresh); err != nil {
		return fmt.Errorf("cron %q: %w", schedule, err)
	}
	refresh()
	c.Start()
	log.Printf("Scheduled refresh: %s", schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// serveSaved serves the saved final channels until ctx is done.
func (a *app) serveSaved(ctx context.Context, addr string) error {
	if addr == "" {
		addr = ":8090"
	}
	srv := a.playlistServer()
	final, err := a.loadFinal()
	if err != nil {
		log.Printf("Load channels: %v; serving with no channels", err)
	} else {
		srv.SetChannels(final)
	}
	log.Printf("Serving %d channels on %s", len(final), addr)
	return serveHTTP(ctx, addr, srv)
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	s := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// check runs the preflight checks. With addr set a running playlist server is checked too.
func (a *app) check(ctx context.Context, addr string) error {
	failed := false
	for _, tool := range []string{a.cfg.FFprobePath, a.cfg.FFmpegPath} {
		if p, err := health.CheckTool(tool); err != nil {
			log.Printf("Check: %v", err)
			failed = true
		} else {
			log.Printf("Check: %s OK (%s)", tool, p)
		}
	}
	if err := a.cfg.Validate(); err != nil {
		log.Printf("Check: %v", err)
		failed = true
	} else if err := health.CheckPortal(ctx, a.cfg.EASBaseURL()); err != nil {
		log.Printf("Check: %v", err)
		failed = true
	} else {
		log.Printf("Check: portal %s OK", a.cfg.EASBaseURL())
	}
	if addr != "" {
		base := "http://" + addr
		if strings.HasPrefix(addr, ":") {
			base = "http://localhost" + addr
		}
		if err := health.CheckEndpoints(ctx, base); err != nil {
			log.Printf("Check: playlist server: %v", err)
			failed = true
		} else {
			log.Printf("Check: playlist server %s OK", base)
		}
	}
	if failed {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}
