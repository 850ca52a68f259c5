package device

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"psbridge/internal/testutil/testlog"
)

// scriptedServer answers each received command with the next reply.
func scriptedServer(t *testing.T, conn net.Conn, replies []string) {
	t.Helper()
	go func() {
		buf := make([]byte, 256)
		for _, reply := range replies {
			if _, err := conn.Read(buf); err != nil {
				return
			}
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}()
}

func TestExchangeRoundTrip(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer server.Close()
	scriptedServer(t, server, []string{"#MST:0007\r\n"})

	ch := NewChannel(client, time.Second, zerolog.Nop())
	defer ch.Close()

	reply, err := ch.Exchange(CommandStatus())
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if reply != "#MST:0007" {
		t.Fatalf("reply mismatch: %q", reply)
	}
}

func TestExchangeTimeoutIsRecoverable(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer server.Close()
	// server reads the command but never answers
	go func() {
		buf := make([]byte, 256)
		_, _ = server.Read(buf)
	}()

	ch := NewChannel(client, 20*time.Millisecond, zerolog.Nop())
	defer ch.Close()

	if _, err := ch.Exchange(CommandStatus()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// the channel stays usable after a timeout
	scriptedServer(t, server, []string{"#AK\r\n"})
	reply, err := ch.Exchange(CommandOutput(true))
	if err != nil {
		t.Fatalf("exchange after timeout: %v", err)
	}
	if reply != "#AK" {
		t.Fatalf("reply mismatch: %q", reply)
	}
}

func TestExchangeReportsPeerHangupAsClosed(t *testing.T) {
	client, server := net.Pipe()
	// server reads the command, then hangs up
	go func() {
		buf := make([]byte, 256)
		_, _ = server.Read(buf)
		server.Close()
	}()

	ch := NewChannel(client, time.Second, zerolog.Nop())
	defer ch.Close()

	_, err := ch.Exchange(CommandStatus())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("hangup must not report as timeout")
	}
}

func TestExchangeAfterCloseFails(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	ch := NewChannel(client, time.Second, zerolog.Nop())
	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := ch.Exchange(CommandStatus()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
