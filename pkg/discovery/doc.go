// Package discovery advertises event publishers over mDNS/DNS-SD.
//
// A publisher registers one instance of the _ctlbus._tcp service. The SRV
// port is the heartbeat port; TXT records carry the full endpoints:
//
//	srv  server name (required)
//	hb   heartbeat endpoint, e.g. tcp://192.168.1.10:5555 (required)
//	pv   envelope protocol version (required)
//	hbt  heartbeat topic
//	ev   event endpoint, once the event socket exists
//	id   engine instance ID
//
// The event endpoint appears later than the others, so advertisers update
// the TXT records in place with Update.
package discovery
