package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/snapetech/iptvportal/internal/catalog"
)

// AuthCheck is the outcome of probing the auth test channel.
type AuthCheck struct {
	Channel  string
	Target   string // redirect target, "" when none came back
	Required bool   // unicast needs authentication
}

// CheckAuth probes the SDP address of the raw channel named name. Unicast is reported as
// requiring authentication when no redirect comes back or the redirect points into
// requiredPrefix (the provider's login gateway).
func (r *Resolver) CheckAuth(ctx context.Context, raw []catalog.RawChannel, name, requiredPrefix string) (AuthCheck, error) {
	for _, ch := range raw {
		if ch.ChannelName != name {
			continue
		}
		addr, ok := SDPAddress(ch.ChannelSDP)
		if !ok {
			return AuthCheck{}, fmt.Errorf("resolver: channel %q has no rtsp:// address", name)
		}
		res := AuthCheck{Channel: name}
		target, err := r.FindRedirect(ctx, addr)
		if err != nil && ctx.Err() != nil {
			return AuthCheck{}, ctx.Err()
		}
		res.Target = target
		res.Required = target == "" || (requiredPrefix != "" && strings.HasPrefix(target, requiredPrefix))
		return res, nil
	}
	return AuthCheck{}, fmt.Errorf("resolver: auth test channel %q not in catalog", name)
}
