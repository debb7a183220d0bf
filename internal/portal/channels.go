package portal

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/snapetech/iptvportal/internal/catalog"
)

// ErrEmptyCatalog means the catalog page decoded but carried no channel entries,
// which in practice means the session was not accepted.
var ErrEmptyCatalog = errors.New("no channel entries in catalog page")

// FetchChannels asks the EPG frameset builder for the channel start page and parses every
// jsSetConfig('Channel', ...) line. There are no retries; any failure is a *CatalogError.
func (c *Client) FetchChannels(ctx context.Context, s Session) ([]catalog.RawChannel, error) {
	form := url.Values{
		"MAIN_WIN_SRC":    {"/iptvepg/frame205/channel_start.jsp?tempno=-1"},
		"NEED_UPDATE_STB": {"1"},
		"BUILD_ACTION":    {"FRAMESET_BUILDER"},
		"hdmistatus":      {"undefined"},
	}
	page, _, err := c.do(ctx, http.MethodPost, s.EPGBaseURL+catalogPath, form, s.JSessionID)
	if err != nil {
		return nil, &CatalogError{Err: err}
	}
	channels := ParseChannels(page)
	if len(channels) == 0 {
		return nil, &CatalogError{Err: ErrEmptyCatalog}
	}
	return channels, nil
}
