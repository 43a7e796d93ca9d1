package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/net/nettest"

	"stopwait/arq"
	"stopwait/config"
	"stopwait/protocol"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	return cfg
}

func startServer(t *testing.T, cfg *config.Config, opts ...func(*Server)) *Server {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	log, _ := test.NewNullLogger()
	srv := NewServer(ln, cfg, log)
	for _, opt := range opts {
		opt(srv)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, name string, segsize int, data []byte) (*arq.Report, error) {
	t.Helper()
	hello := &protocol.Hello{
		MaxSegmentSize: uint32(segsize),
		PayloadSize:    uint64(len(data)),
		Name:           name,
	}
	if err := protocol.Handshake(conn, hello); err != nil {
		return nil, err
	}
	log, _ := test.NewNullLogger()
	s := arq.NewSender(conn, segsize)
	s.Logger = log
	return s.Send(data)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func randomPayload(n int) []byte {
	r := rand.New(rand.NewPCG(uint64(n), 1))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func readOutput(t *testing.T, dir, name string) []byte {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "received_*_"+name))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one output for %s, found %v", name, matches)
	}
	b, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestServerReceivesFile(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		segsize int
	}{
		{"empty", 0, 1024},
		{"single byte", 1, 1024},
		{"ten thousand", 10000, 1024},
		{"exact multiple", 4096, 1024},
		{"tiny segments", 777, 7},
		{"sentinel on boundary", 1023, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			srv := startServer(t, cfg)
			data := randomPayload(tt.size)

			report, err := send(t, dial(t, srv), "myfile.txt", tt.segsize, data)
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if report.Cursor != int64(tt.size+1) {
				t.Errorf("cursor = %d, want %d", report.Cursor, tt.size+1)
			}

			waitFor(t, "completed session", func() bool { return srv.Stats().Snapshot().Completed == 1 })
			if got := readOutput(t, cfg.OutputDir, "myfile.txt"); !bytes.Equal(got, data) {
				t.Errorf("output differs: got %d bytes, want %d", len(got), len(data))
			}

			snap := srv.Stats().Snapshot()
			if snap.AcceptedBytes != int64(tt.size) {
				t.Errorf("AcceptedBytes = %d, want %d", snap.AcceptedBytes, tt.size)
			}
			if want := int64(arq.SegmentCount(tt.size, tt.segsize)); snap.Segments != want {
				t.Errorf("Segments = %d, want %d", snap.Segments, want)
			}
		})
	}
}

func TestServerRetransmits(t *testing.T) {
	cfg := testConfig(t)
	srv := startServer(t, cfg, func(s *Server) {
		s.newFault = func(uuid.UUID) arq.FaultInjector {
			return arq.NewFaultSequence(true, false, true, true)
		}
	})

	data := randomPayload(3000)
	report, err := send(t, dial(t, srv), "lossy.bin", 1024, data)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if report.Retransmissions != 3 {
		t.Errorf("Retransmissions = %d, want 3", report.Retransmissions)
	}
	if report.PacketsSent != 3+3 {
		t.Errorf("PacketsSent = %d, want 6", report.PacketsSent)
	}

	waitFor(t, "completed session", func() bool { return srv.Stats().Snapshot().Completed == 1 })
	if got := readOutput(t, cfg.OutputDir, "lossy.bin"); !bytes.Equal(got, data) {
		t.Error("output differs after retransmissions")
	}
	snap := srv.Stats().Snapshot()
	if snap.Nacks != 3 {
		t.Errorf("Nacks = %d, want 3", snap.Nacks)
	}
	if snap.RawBytes != report.TotalBytesSent {
		t.Errorf("RawBytes = %d, sender sent %d", snap.RawBytes, report.TotalBytesSent)
	}
}

func TestServerRandomFault(t *testing.T) {
	cfg := testConfig(t)
	cfg.ErrorRate = 0.3
	srv := startServer(t, cfg)

	data := randomPayload(20000)
	report, err := send(t, dial(t, srv), "noisy.bin", 256, data)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "completed session", func() bool { return srv.Stats().Snapshot().Completed == 1 })
	if got := readOutput(t, cfg.OutputDir, "noisy.bin"); !bytes.Equal(got, data) {
		t.Error("output differs under random loss")
	}
	if report.Retransmissions == 0 {
		t.Error("no retransmissions at error rate 0.3 over 79 segments")
	}
}

func TestServerRejectsHello(t *testing.T) {
	tests := []struct {
		name    string
		segsize int
		size    int
	}{
		{"segment above cap", 2048, 10},
		{"payload above limit", 512, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.MaxTransferSize = 4096
			srv := startServer(t, cfg)

			_, err := send(t, dial(t, srv), "big.bin", tt.segsize, make([]byte, tt.size))
			perr, ok := protocol.IsProtocolError(err)
			if !ok || perr.Code != protocol.ErrCodeRejected {
				t.Fatalf("send = %v, want rejected", err)
			}
			waitFor(t, "rejected session", func() bool { return srv.Stats().Snapshot().Rejected == 1 })
		})
	}
}

func TestServerSurvivesHugeAnnouncedSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTransferSize = 0
	srv := startServer(t, cfg)

	huge := dial(t, srv)
	if err := protocol.Handshake(huge, &protocol.Hello{MaxSegmentSize: 1024, PayloadSize: 1 << 62, Name: "x"}); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	huge.Close()
	waitFor(t, "failed session", func() bool { return srv.Stats().Snapshot().Failed == 1 })

	overflow := dial(t, srv)
	err := protocol.Handshake(overflow, &protocol.Hello{MaxSegmentSize: 1024, PayloadSize: 1 << 63, Name: "y"})
	if perr, ok := protocol.IsProtocolError(err); !ok || perr.Code != protocol.ErrCodeRejected {
		t.Fatalf("handshake = %v, want rejected", err)
	}

	data := randomPayload(5000)
	if _, err := send(t, dial(t, srv), "after.bin", 1024, data); err != nil {
		t.Fatalf("send after huge hello: %v", err)
	}
	waitFor(t, "completed session", func() bool { return srv.Stats().Snapshot().Completed == 1 })
	if got := readOutput(t, cfg.OutputDir, "after.bin"); !bytes.Equal(got, data) {
		t.Error("output differs after huge hello")
	}
}

func TestServerBadHello(t *testing.T) {
	srv := startServer(t, testConfig(t))
	conn := dial(t, srv)

	if err := protocol.Encode(conn, &protocol.Frame{Type: protocol.FrameSegment, Payload: []byte("hi")}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failed session", func() bool { return srv.Stats().Snapshot().Failed == 1 })
}

func TestServerCloseDropsSessions(t *testing.T) {
	srv := startServer(t, testConfig(t))
	conn := dial(t, srv)

	hello := &protocol.Hello{MaxSegmentSize: 1024, PayloadSize: 10, Name: "stalled"}
	if err := protocol.Handshake(conn, hello); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Close() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return with a stalled session")
	}
	if snap := srv.Stats().Snapshot(); snap.Failed != 1 || snap.Completed != 0 {
		t.Errorf("unexpected stats %+v", snap)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestServerMaxConns(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConns = 1
	srv := startServer(t, cfg)

	first := dial(t, srv)
	hello := &protocol.Hello{MaxSegmentSize: 1024, PayloadSize: 3, Name: "first"}
	if err := protocol.Handshake(first, hello); err != nil {
		t.Fatal(err)
	}

	second := dial(t, srv)
	if err := protocol.WriteHello(second, &protocol.Hello{MaxSegmentSize: 1024, PayloadSize: 3, Name: "second"}); err != nil {
		t.Fatal(err)
	}
	second.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := protocol.ReadAck(second); err == nil {
		t.Fatal("second session admitted while the first was running")
	}

	log, _ := test.NewNullLogger()
	s := arq.NewSender(first, 1024)
	s.Logger = log
	if _, err := s.Send([]byte("abc")); err != nil {
		t.Fatal(err)
	}

	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	ack, err := protocol.ReadAck(second)
	if err != nil {
		t.Fatalf("second hello never answered: %v", err)
	}
	if !ack.IsAck() {
		t.Errorf("second hello answered with %v", ack)
	}
}

func TestOutputName(t *testing.T) {
	id := uuid.NewV4()
	prefix := "received_" + id.String()[:8] + "_"
	tests := []struct {
		in, want string
	}{
		{"myfile.txt", prefix + "myfile.txt"},
		{"../../etc/passwd", prefix + "passwd"},
		{`..\..\boot.ini`, prefix + "boot.ini"},
		{"/abs/path/data.bin", prefix + "data.bin"},
		{"", prefix + "receivedTCPFile.txt"},
		{"..", prefix + "receivedTCPFile.txt"},
	}
	for _, tt := range tests {
		if got := outputName(id, tt.in); got != tt.want {
			t.Errorf("outputName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintFinalStats(t *testing.T) {
	stats := NewServerStats()
	stats.sessionStarted()
	stats.sessionCompleted(&arq.Result{AcceptedBytes: 900, RawBytes: 1000, Segments: 3, Rejected: 1})

	var buf bytes.Buffer
	stats.printFinalStats(&buf)
	out := buf.String()
	for _, want := range []string{
		"Final Statistics",
		"Sessions: 1 (completed 1, failed 0, rejected 0)",
		"Total Bytes Accepted: 900",
		"NACKs Sent: 1",
		"Final Goodput: 0.9000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("final stats missing %q:\n%s", want, out)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Listen = "127.0.0.1:0"
	Logger.SetOutput(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
