package zerocopy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctlbus/ctlbus-go/pkg/transport/transporttest"
)

func fired(tok *Token) bool {
	select {
	case <-tok.Done():
		return true
	default:
		return false
	}
}

func TestTokenFiresAfterSealAndRelease(t *testing.T) {
	tok := NewToken()
	r1 := tok.Hold()
	r2 := tok.Hold()

	r1()
	assert.False(t, fired(tok), "fired with a hold outstanding")

	r2()
	assert.False(t, fired(tok), "fired before seal")

	tok.Seal()
	assert.True(t, fired(tok))
}

func TestTokenReleaseIdempotent(t *testing.T) {
	tok := NewToken()
	r1 := tok.Hold()
	r2 := tok.Hold()

	r1()
	r1()
	assert.Equal(t, 1, tok.Outstanding())

	tok.Seal()
	assert.False(t, fired(tok))
	r2()
	assert.True(t, fired(tok))
}

func TestTokenSealWithoutHolds(t *testing.T) {
	tok := NewToken()
	tok.Seal()
	tok.Seal()
	assert.True(t, fired(tok))
}

func TestHoldAfterSealPanics(t *testing.T) {
	tok := NewToken()
	tok.Seal()
	assert.Panics(t, func() { tok.Hold() })
}

func TestFinishBlocksUntilRelease(t *testing.T) {
	sock := transporttest.NewSocket()
	sock.HoldReleases(true)

	tr := NewTransmitter()
	buf := []byte("large payload buffer")

	tok := tr.Begin()
	require.NoError(t, tr.Send(tok, sock, [][]byte{[]byte("topic"), buf}))

	done := make(chan struct{})
	go func() {
		tr.Finish(tok)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Finish returned before release")
	case <-time.After(50 * time.Millisecond):
	}

	// The socket still sees the caller's buffer, unchanged.
	sent := sock.Sends()[0]
	assert.Same(t, &buf[0], &sent.Borrowed[0])
	assert.Equal(t, "large payload buffer", string(sent.Borrowed))

	assert.Equal(t, 1, sock.ReleasePending())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Finish did not return after release")
	}

	st := tr.Stats()
	assert.Equal(t, uint64(1), st.Publishes)
	assert.Equal(t, uint64(1), st.Handoffs)
	assert.Positive(t, st.Waited)
}

func TestFinishAcrossTwoSockets(t *testing.T) {
	a := transporttest.NewSocket()
	b := transporttest.NewSocket()
	b.HoldReleases(true)

	tr := NewTransmitter()
	tok := tr.Begin()
	parts := [][]byte{[]byte("t"), []byte("p")}
	require.NoError(t, tr.Send(tok, a, parts))
	require.NoError(t, tr.Send(tok, b, parts))

	tok.Seal()
	assert.False(t, fired(tok))
	b.ReleasePending()
	assert.True(t, fired(tok))
}

func TestFailedSendStillReleases(t *testing.T) {
	sock := transporttest.NewSocket()
	sock.FailNext(assert.AnError)

	tr := NewTransmitter()
	tok := tr.Begin()
	err := tr.Send(tok, sock, [][]byte{[]byte("t"), []byte("p")})
	assert.ErrorIs(t, err, assert.AnError)

	tr.Finish(tok) // must not block
	assert.True(t, fired(tok))
}
