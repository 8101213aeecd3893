// Package rtc hands browsers the ICE configuration for peer-to-peer calls.
// Media never touches this server; only signaling does.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// ConfigFromJSON parses a JSON array of ICE servers; blank input yields the default.
func ConfigFromJSON(raw string) (webrtc.Configuration, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultWebRTCConfig(), nil
	}
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return webrtc.Configuration{}, fmt.Errorf("parse ice servers: %w", err)
	}
	if len(servers) == 0 {
		return webrtc.Configuration{}, errors.New("ice servers: empty list")
	}
	for i, s := range servers {
		if err := validate(s); err != nil {
			return webrtc.Configuration{}, fmt.Errorf("ice server %d: %w", i, err)
		}
	}
	return webrtc.Configuration{ICEServers: servers}, nil
}

func validate(s webrtc.ICEServer) error {
	if len(s.URLs) == 0 {
		return errors.New("no urls")
	}
	for _, raw := range s.URLs {
		uri, err := stun.ParseURI(raw)
		if err != nil {
			return fmt.Errorf("%q: %w", raw, err)
		}
		if uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS {
			if s.Username == "" || s.Credential == nil {
				return fmt.Errorf("%q: turn needs username and credential", raw)
			}
		}
	}
	return nil
}
