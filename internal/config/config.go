package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/wire"
)

// Default configuration values
const (
	DefaultRelayURL          = "ws://localhost:8080/ws"
	DefaultRelayAddr         = ":8080"
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
)

// DefaultSTUNServers are used when no STUN server is configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config holds participant configuration
type Config struct {
	// RelayURL is the websocket endpoint of the signaling relay
	RelayURL string

	// Codec selects the signaling wire encoding
	Codec wire.Codec

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	// Reconnection policy for the relay link: a fixed delay between a
	// bounded number of attempts
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// OutputDir is where received files are written
	OutputDir string
}

// Options for loading config with CLI flag overrides
type Options struct {
	RelayURL   string
	Codec      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	OutputDir  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	relayURL := firstNonEmpty(opts.RelayURL, os.Getenv("RELAY_URL"), DefaultRelayURL)
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid relay URL %q: scheme must be ws or wss", relayURL)
	}

	codecName := firstNonEmpty(opts.Codec, os.Getenv("SIGNALING_CODEC"))
	codec, ok := wire.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("unknown signaling codec %q", codecName)
	}

	stun := DefaultSTUNServers
	if s := firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER")); s != "" {
		stun = strings.Split(s, ",")
	}

	cfg := &Config{
		RelayURL:          relayURL,
		Codec:             codec,
		STUNServers:       stun,
		TURNServer:        firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:          firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:          firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:        opts.ForceRelay,
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		OutputDir:         opts.OutputDir,
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RelayConfig holds relay server configuration.
type RelayConfig struct {
	Addr string
}

// LoadRelay reads the relay listen address from PORT, falling back to
// DefaultRelayAddr.
func LoadRelay() RelayConfig {
	if port := os.Getenv("PORT"); port != "" {
		return RelayConfig{Addr: ":" + port}
	}
	return RelayConfig{Addr: DefaultRelayAddr}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
