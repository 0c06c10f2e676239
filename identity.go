package ratelimiter

import (
	"net"
	"net/http"
	"strings"
)

// AnonymousClientID is used when a request carries no client id.
const AnonymousClientID = "anon"

// Identity is the request dimension set used to select rules and derive
// counter keys. Build it with NewIdentity so Path and HTTPVerb are normalized.
type Identity struct {
	ClientID string
	ClientIP string
	Path     string
	HTTPVerb string
}

// NewIdentity normalizes path and verb: both are lowercased and a trailing
// slash is trimmed from any path other than "/".
func NewIdentity(clientID, clientIP, path, verb string) Identity {
	path = strings.ToLower(path)
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return Identity{
		ClientID: clientID,
		ClientIP: clientIP,
		Path:     path,
		HTTPVerb: strings.ToLower(verb),
	}
}

// IdentityFunc resolves the Identity of an inbound request.
type IdentityFunc func(r *http.Request) (Identity, error)

// ResolveIdentity returns an IdentityFunc reading the client id from
// clientIDHeader and the client address from realIPHeader, then the first
// X-Forwarded-For hop, then RemoteAddr.
func ResolveIdentity(clientIDHeader, realIPHeader string) IdentityFunc {
	return func(r *http.Request) (Identity, error) {
		clientID := ""
		if clientIDHeader != "" {
			clientID = strings.TrimSpace(r.Header.Get(clientIDHeader))
		}
		if clientID == "" {
			clientID = AnonymousClientID
		}
		return NewIdentity(clientID, clientIP(r, realIPHeader), r.URL.Path, r.Method), nil
	}
}

func clientIP(r *http.Request, realIPHeader string) string {
	if realIPHeader != "" {
		if ip := strings.TrimSpace(r.Header.Get(realIPHeader)); ip != "" {
			return ip
		}
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
