// Package payload classifies event payloads for the publish path.
//
// The engine never marshals domain values itself. Callers hand it an opaque
// byte buffer together with a Kind describing what the buffer carries. The
// Kind decides whether the buffer is large enough to be sent through the
// zero-copy path instead of being copied into a fresh frame.
//
// # Thresholds
//
// Raw numeric arrays become large at DefaultArrayThreshold elements.
// Already-encoded payloads (images, compressed blobs) are measured in bytes
// and become large only above DefaultEncodedThreshold, since they are
// typically sent less often and compress poorly.
package payload
