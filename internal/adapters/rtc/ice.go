// Package rtc renders the configured STUN/TURN set for browser peers.
// Media never passes through the server.
package rtc

import (
	"fmt"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Credentials apply to turn: and turns: entries only.
type Credentials struct {
	Username   string
	Credential string
}

// ICEServers validates urls and returns one ICE server per url.
func ICEServers(urls []string, creds Credentials) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, raw := range urls {
		uri, err := stun.ParseURI(raw)
		if err != nil {
			return nil, fmt.Errorf("ice server %q: %w", raw, err)
		}
		server := webrtc.ICEServer{URLs: []string{raw}}
		if isTURN(uri) && creds.Username != "" {
			server.Username = creds.Username
			server.Credential = creds.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	log.Info().Str("module", "rtc").Int("ice_servers", len(out)).Msg("ice servers configured")
	return out, nil
}

// Configuration is what a pion peer would be built with; browsers get the same list.
func Configuration(servers []webrtc.ICEServer) webrtc.Configuration {
	return webrtc.Configuration{ICEServers: servers}
}

func isTURN(uri *stun.URI) bool {
	return uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS
}
