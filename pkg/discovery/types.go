package discovery

import (
	"errors"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of event publishers.
	ServiceType = "_ctlbus._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout is the default timeout for browse operations.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyServer    = "srv"
	TXTKeyHeartbeat = "hb"
	TXTKeyEvent     = "ev"
	TXTKeyTopic     = "hbt"
	TXTKeyVersion   = "pv"
	TXTKeyEngineID  = "id"
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotAdvertising      = errors.New("not advertising")
)

// PublisherInfo is what a publisher advertises.
type PublisherInfo struct {
	// Instance is the DNS-SD instance name. Defaults to ServerName.
	Instance string

	// ServerName names the server process.
	ServerName string

	// HeartbeatEndpoint is where subscribers receive heartbeats.
	HeartbeatEndpoint string

	// HeartbeatTopic is the topic of the heartbeat messages.
	HeartbeatTopic string

	// EventEndpoint is where subscribers receive events. Empty until the
	// event socket exists.
	EventEndpoint string

	// ProtocolVersion is the envelope version.
	ProtocolVersion int

	// EngineID identifies the publisher instance.
	EngineID string

	// Port is the advertised SRV port, normally the heartbeat port.
	Port int
}

// PublisherService is a publisher found by browsing.
type PublisherService struct {
	PublisherInfo

	// Host is the advertised host name.
	Host string

	// Addresses are the advertised IP addresses.
	Addresses []string
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to browse on.
	// Empty string means all interfaces.
	Interface string

	// BrowseTimeout bounds Find.
	BrowseTimeout time.Duration
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}
