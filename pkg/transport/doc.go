// Package transport provides the sockets the publisher writes to.
//
// Two kinds of socket are supported:
//
//   - PUB sockets (ZeroMQ over TCP, via go-zeromq) for heartbeats and
//     unicast data events. Subscribers connect and filter on the topic part.
//   - Multicast sockets (UDP to an IPv4 group) for routes declared as
//     multicast. Each message travels as one datagram of length-prefixed
//     parts; see wire.AppendFrames.
//
// # Zero-Copy Hand-Off
//
// SendZeroCopy passes a message whose last part is borrowed from the caller.
// The socket calls release exactly once, after it no longer references the
// buffer, including when the send fails. Synchronous sockets release before
// SendZeroCopy returns; a socket may also release later from another
// goroutine.
//
// Only multicast sockets send the borrowed buffer itself. go-zeromq queues
// outgoing messages and gives no write-completion signal, so PUB sockets
// copy the borrowed part and release it before queueing.
//
// # Defaults
//
//	PUB high-water mark:   1000 messages
//	multicast hops (TTL):  5
//	multicast rate:        80 Mbit/s (81920 kbit/s)
//	max datagram:          65507 bytes
package transport
