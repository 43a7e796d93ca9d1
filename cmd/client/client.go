package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"stopwait/arq"
	"stopwait/config"
	"stopwait/protocol"
)

// settleDelay is how long a watched file must stay unchanged before it is sent.
const settleDelay = 250 * time.Millisecond

type Client struct {
	cfg    *config.Config
	log    logrus.FieldLogger
	out    io.Writer
	dialer net.Dialer
	settle time.Duration
}

// NewClient prints a report for every finished transfer to out.
func NewClient(cfg *config.Config, log logrus.FieldLogger, out io.Writer) *Client {
	return &Client{cfg: cfg, log: log, out: out, settle: settleDelay}
}

// SendFile transfers the file at path. Oversized files are refused before
// they are read.
func (c *Client) SendFile(ctx context.Context, path string) (*arq.Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if limit := c.cfg.MaxTransferSize; limit > 0 && info.Size() > limit {
		return nil, protocol.NewResourceError(
			fmt.Sprintf("%s is %d bytes, limit is %d", path, info.Size(), limit))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, filepath.Base(path), data)
}

// Send runs one session: dial, hello, then the stop-and-wait transfer.
// Cancelling ctx closes the connection and aborts the transfer.
func (c *Client) Send(ctx context.Context, name string, data []byte) (*arq.Report, error) {
	if limit := c.cfg.MaxTransferSize; limit > 0 && int64(len(data)) > limit {
		return nil, protocol.NewResourceError(
			fmt.Sprintf("payload of %d bytes exceeds limit of %d", len(data), limit))
	}
	addr := c.cfg.Address()
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, protocol.NewTransportError("dial "+addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log := c.log.WithFields(logrus.Fields{
		"remote": conn.RemoteAddr().String(),
		"name":   name,
	})
	log.WithField("bytes", len(data)).Info("Connected")

	hello := &protocol.Hello{
		MaxSegmentSize: uint32(c.cfg.MaxSegmentSize),
		PayloadSize:    uint64(len(data)),
		Name:           name,
	}
	if timeout := c.cfg.AckTimeout.Duration; timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, protocol.NewTransportError("set deadline", err)
		}
	}
	if err := protocol.Handshake(conn, hello); err != nil {
		log.WithError(err).Error("Handshake failed")
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, protocol.NewTransportError("clear deadline", err)
	}

	sender := arq.NewSender(conn, c.cfg.MaxSegmentSize)
	sender.Logger = log
	sender.AckTimeout = c.cfg.AckTimeout.Duration
	sender.MaxPayload = c.cfg.MaxTransferSize

	if interval := c.cfg.ProgressInterval.Duration; interval > 0 {
		p := arq.StartProgress(sender.Stats(), int64(len(data))+1, interval, log)
		defer p.Stop()
	}

	report, err := sender.Send(data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return nil, err
	}
	printReport(c.out, name, report)
	return report, nil
}

func printReport(w io.Writer, name string, r *arq.Report) {
	fmt.Fprintf(w, "\n========== Transfer Complete: %s ==========\n", name)
	fmt.Fprintf(w, "Time(ms) : %.3f, Data sent(byte): %d\n", r.ElapsedMillis(), r.PayloadBytes)
	fmt.Fprintf(w, "Data rate: %f (Kbytes/s), %.3f Mbit/s\n", r.Throughput(), r.MbitPerSec())
	fmt.Fprintf(w, "Segments: %d, Packets Sent: %d, Retransmissions: %d\n",
		r.Segments, r.PacketsSent, r.Retransmissions)
	fmt.Fprintf(w, "Total Bytes Sent: %d, Cursor: %d\n", r.TotalBytesSent, r.Cursor)
}
