// Package ice supplies the STUN/TURN server list handed to clients for
// WebRTC connectivity.
package ice

import "strings"

// DefaultSTUN is used when no ICE servers are configured.
const DefaultSTUN = "stun:stun.l.google.com:19302"

// Server is one entry of an RTCConfiguration iceServers list.
type Server struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Provider returns the ICE servers a client should use.
type Provider interface {
	ICEServers() []Server
}

// Static serves a fixed list built at startup.
type Static struct {
	servers []Server
}

// NewStatic builds a provider from STUN urls and optional TURN urls with
// shared credentials. Blank urls are ignored.
func NewStatic(stunURLs, turnURLs []string, username, credential string) *Static {
	var servers []Server
	if urls := clean(stunURLs); len(urls) > 0 {
		servers = append(servers, Server{URLs: urls})
	}
	if urls := clean(turnURLs); len(urls) > 0 {
		servers = append(servers, Server{URLs: urls, Username: username, Credential: credential})
	}
	if len(servers) == 0 {
		servers = []Server{{URLs: []string{DefaultSTUN}}}
	}
	return &Static{servers: servers}
}

// ICEServers returns a copy of the configured list.
func (s *Static) ICEServers() []Server {
	out := make([]Server, len(s.servers))
	for i, srv := range s.servers {
		out[i] = srv
		out[i].URLs = append([]string(nil), srv.URLs...)
	}
	return out
}

func clean(urls []string) []string {
	var out []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
