package playlist

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/snapetech/iptvportal/internal/catalog"
)

// Server serves the latest channel set as /unicast.m3u, /multicast.m3u and /channels.md.
// SetChannels may be called while serving, e.g. after each scheduled refresh.
type Server struct {
	Options Options
	Exclude []string // ChannelName exclusions applied to both playlists
	Order   []string
	HDTag   string

	mu       sync.RWMutex
	channels []catalog.Channel
	updated  time.Time
}

// SetChannels replaces the served channel set.
func (s *Server) SetChannels(channels []catalog.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = Order(Filter(channels, s.Exclude), s.Order, s.HDTag)
	s.updated = time.Now()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	channels, updated := s.channels, s.updated
	s.mu.RUnlock()
	if channels == nil {
		channels = []catalog.Channel{}
	}

	var buf bytes.Buffer
	var err error
	switch r.URL.Path {
	case "/unicast.m3u":
		w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
		err = Write(&buf, channels, Unicast, s.Options)
	case "/multicast.m3u":
		w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
		err = Write(&buf, channels, Multicast, s.Options)
	case "/channels.md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		err = WriteMarkdown(&buf, channels, nil, updated)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}
