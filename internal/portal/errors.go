package portal

import (
	"errors"
	"fmt"
)

// Kind classifies a handshake failure.
type Kind int

const (
	TokenNotFound Kind = iota + 1
	RedirectNotFound
	UserTokenMissing
	MisconfiguredKey
	Transport
	BadStatus
)

func (k Kind) String() string {
	switch k {
	case TokenNotFound:
		return "token not found"
	case RedirectNotFound:
		return "redirect not found"
	case UserTokenMissing:
		return "user token missing"
	case MisconfiguredKey:
		return "misconfigured key"
	case Transport:
		return "transport"
	case BadStatus:
		return "bad status"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// AuthError is a fatal handshake failure. Step names the request that failed
// ("token", "auth", "redirect").
type AuthError struct {
	Kind Kind
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("portal: %s: %s: %v", e.Step, e.Kind, e.Err)
	}
	return fmt.Sprintf("portal: %s: %s", e.Step, e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsKind reports whether err is an *AuthError of kind k.
func IsKind(err error, k Kind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == k
}

// CatalogError is a fatal failure fetching or decoding the channel list.
type CatalogError struct {
	Err error
}

func (e *CatalogError) Error() string { return "portal: catalog: " + e.Err.Error() }

func (e *CatalogError) Unwrap() error { return e.Err }

// RegistrationError is returned by Register. It is not fatal: the *Registered returned
// alongside it is still usable.
type RegistrationError struct {
	Err error
}

func (e *RegistrationError) Error() string { return "portal: register: " + e.Err.Error() }

func (e *RegistrationError) Unwrap() error { return e.Err }

// statusError reports a non-2xx portal response.
type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string { return fmt.Sprintf("%s: status %d", e.URL, e.Code) }
