package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

const (
	// readPoll bounds each blocking read so cancellation is noticed
	readPoll = time.Second
	// drainWait is how long Drain waits for one more queued datagram
	drainWait = 10 * time.Millisecond
)

// Listener receives announcement datagrams from a multicast group
type Listener struct {
	conn   *ipv4.PacketConn
	group  *net.UDPAddr
	logger *utils.Logger
}

// Listen binds the group's port with address reuse, so several workers on
// one machine can share it, and joins the group on every multicast-capable
// interface.
func Listen(ctx context.Context, group string, port int) (*Listener, error) {
	ip := net.ParseIP(group)
	if ip == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("%w: %q is not a multicast group", models.ErrValidation, group)
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	c, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to bind discovery port %d: %w", port, err)
	}

	l := &Listener{
		conn:   ipv4.NewPacketConn(c),
		group:  &net.UDPAddr{IP: ip},
		logger: utils.NewLogger("discovery-listener"),
	}
	if err := l.join(); err != nil {
		l.conn.Close()
		return nil, err
	}
	return l, nil
}

func (l *Listener) join() error {
	joined := 0
	interfaces, err := net.Interfaces()
	if err != nil {
		l.logger.Warn("Failed to list interfaces: %v", err)
	}
	for i := range interfaces {
		iface := &interfaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := l.conn.JoinGroup(iface, l.group); err != nil {
			l.logger.Debug("Could not join %s on %s: %v", l.group.IP, iface.Name, err)
			continue
		}
		joined++
	}

	if joined == 0 {
		// Let the kernel pick the interface.
		if err := l.conn.JoinGroup(nil, l.group); err != nil {
			return fmt.Errorf("failed to join multicast group %s: %w", l.group.IP, err)
		}
		joined = 1
	}

	l.logger.Info("Listening for announcements on %s (%d interfaces)", l.group.IP, joined)
	return nil
}

// LocalAddr returns the bound address
func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// Receive blocks until a datagram arrives or ctx is cancelled
func (l *Listener) Receive(ctx context.Context) ([]byte, error) {
	buf := make([]byte, maxAnnouncementSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, _, src, err := l.conn.ReadFrom(buf)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read announcement: %w", err)
		}

		l.logger.Debug("Received %d bytes from %s", n, src)
		data := make([]byte, n)
		copy(data, buf[:n])
		return data, nil
	}
}

// Drain discards every datagram already queued on the socket and returns
// how many were dropped.
func (l *Listener) Drain() (int, error) {
	buf := make([]byte, maxAnnouncementSize)
	drained := 0
	for {
		if err := l.conn.SetReadDeadline(time.Now().Add(drainWait)); err != nil {
			return drained, fmt.Errorf("failed to set read deadline: %w", err)
		}
		if _, _, _, err := l.conn.ReadFrom(buf); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return drained, nil
			}
			return drained, fmt.Errorf("failed to drain announcements: %w", err)
		}
		drained++
	}
}

// Close leaves the group and closes the socket
func (l *Listener) Close() error {
	return l.conn.Close()
}
