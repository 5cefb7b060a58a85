// Package wire builds the multi-part frames published on the event bus.
//
// Every published message is a sequence of parts sent as one transport
// message:
//
//	heartbeat:  topic | endian | envelope
//	data event: topic | endian | envelope | payload
//
// The topic is the lower-cased, fully-qualified event name and doubles as
// the subscription filter on PUB sockets. The endian part is a single byte
// (0 = big, 1 = little) describing the byte order of the envelope and of any
// native-order payload. The envelope carries the protocol version, the
// exception flag and, for data events, the per-event counter subscribers use
// to detect gaps.
//
// # Envelope Layout
//
//	offset 0  int32   version
//	offset 4  uint8   exception flag (0/1)
//	offset 5  [3]byte padding
//	offset 8  uint32  counter (data events only)
//
// # Exception Payloads
//
// When the exception flag is set, the payload is a CBOR-encoded list of
// DevError values instead of the attribute value.
package wire
