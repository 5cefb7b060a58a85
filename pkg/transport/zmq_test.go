package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
)

func TestZMQPubListenEphemeral(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &ZMQFactory{}
	pub, err := f.NewPub(ctx)
	if err != nil {
		t.Fatalf("NewPub failed: %v", err)
	}
	defer pub.Close()

	if err := pub.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	addr, ok := pub.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("Addr() = %T, want *net.TCPAddr", pub.Addr())
	}
	if addr.Port == 0 {
		t.Error("ephemeral port not resolved")
	}
}

func TestZMQPubDeliversToSubscriber(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub, err := (&ZMQFactory{HWM: 10}).NewPub(ctx)
	if err != nil {
		t.Fatalf("NewPub failed: %v", err)
	}
	defer pub.Close()
	if err := pub.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	sub := zmq4.NewSub(ctx)
	defer sub.Close()
	if err := sub.Dial("tcp://" + pub.Addr().String()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, "dev/"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	got := make(chan zmq4.Msg, 1)
	go func() {
		msg, err := sub.Recv()
		if err == nil {
			got <- msg
		}
	}()

	// Subscriptions propagate asynchronously; keep publishing until one lands.
	parts := [][]byte{[]byte("dev/attr.change"), {1}, make([]byte, 12), []byte("v")}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case msg := <-got:
			if len(msg.Frames) != 4 {
				t.Fatalf("received %d frames, want 4", len(msg.Frames))
			}
			if string(msg.Frames[0]) != "dev/attr.change" || string(msg.Frames[3]) != "v" {
				t.Errorf("unexpected frames: %q", msg.Frames)
			}
			return
		case <-ticker.C:
			if err := pub.Send(parts); err != nil {
				t.Fatalf("Send failed: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestZMQPubZeroCopyReleases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := (&ZMQFactory{}).NewPub(ctx)
	if err != nil {
		t.Fatalf("NewPub failed: %v", err)
	}
	if err := pub.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	released := 0
	if err := pub.SendZeroCopy([][]byte{[]byte("t"), []byte("big")}, func() { released++ }); err != nil {
		t.Fatalf("SendZeroCopy failed: %v", err)
	}
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}

	pub.Close()
	err = pub.SendZeroCopy([][]byte{[]byte("t")}, func() { released++ })
	if !errors.Is(err, ErrClosed) {
		t.Errorf("send after close: got %v, want ErrClosed", err)
	}
	if released != 2 {
		t.Errorf("release not called on failed send")
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestZMQPubZeroCopyOutlivesCallerBuffer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub, err := (&ZMQFactory{}).NewPub(ctx)
	if err != nil {
		t.Fatalf("NewPub failed: %v", err)
	}
	defer pub.Close()
	if err := pub.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	sub := zmq4.NewSub(ctx)
	defer sub.Close()
	if err := sub.Dial("tcp://" + pub.Addr().String()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, "wave"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	got := make(chan zmq4.Msg, 1)
	go func() {
		msg, err := sub.Recv()
		if err == nil {
			got <- msg
		}
	}()

	const size = 64 * 1024
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case msg := <-got:
			if len(msg.Frames) != 2 || len(msg.Frames[1]) != size {
				t.Fatalf("unexpected message shape: %d frames", len(msg.Frames))
			}
			if !bytes.Equal(msg.Frames[1], bytes.Repeat([]byte{'A'}, size)) {
				t.Fatalf("payload changed after release: starts with %q", msg.Frames[1][:8])
			}
			return
		case <-ticker.C:
			buf := bytes.Repeat([]byte{'A'}, size)
			released := false
			if err := pub.SendZeroCopy([][]byte{[]byte("wave"), buf}, func() { released = true }); err != nil {
				t.Fatalf("SendZeroCopy failed: %v", err)
			}
			if !released {
				t.Fatal("buffer not released")
			}
			// The caller owns the buffer again and reuses it.
			for i := range buf {
				buf[i] = 'Z'
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for message")
		}
	}
}
