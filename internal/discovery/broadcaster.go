package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// announcementTTL keeps announcements on the local subnet
const announcementTTL = 1

// datagramWriter is the part of *ipv4.PacketConn the broadcaster uses
type datagramWriter interface {
	WriteTo(b []byte, cm *ipv4.ControlMessage, dst net.Addr) (int, error)
	Close() error
}

// BroadcasterConfig holds broadcaster configuration
type BroadcasterConfig struct {
	Group    string
	Port     int
	Address  models.ControllerAddress
	Interval time.Duration
}

// Broadcaster periodically multicasts the controller's address. Sends are
// fire-and-forget; a failed send is logged and the loop carries on.
type Broadcaster struct {
	conn     datagramWriter
	dst      *net.UDPAddr
	payload  []byte
	interval time.Duration
	logger   *utils.Logger
}

// NewBroadcaster opens the multicast socket. An error here means the
// controller cannot announce itself at all.
func NewBroadcaster(config BroadcasterConfig) (*Broadcaster, error) {
	group := net.ParseIP(config.Group)
	if group == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("%w: %q is not a multicast group", models.ErrValidation, config.Group)
	}

	c, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("failed to open announcement socket: %w", err)
	}

	conn := ipv4.NewPacketConn(c)
	if err := conn.SetMulticastTTL(announcementTTL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set multicast TTL: %w", err)
	}
	// Lets a worker on the controller's own machine hear it.
	if err := conn.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable multicast loopback: %w", err)
	}

	return newBroadcaster(conn, &net.UDPAddr{IP: group, Port: config.Port}, config), nil
}

func newBroadcaster(conn datagramWriter, dst *net.UDPAddr, config BroadcasterConfig) *Broadcaster {
	return &Broadcaster{
		conn:     conn,
		dst:      dst,
		payload:  EncodeAnnouncement(config.Address),
		interval: config.Interval,
		logger:   utils.NewLogger("broadcaster"),
	}
}

// Run announces immediately and then every interval until ctx is
// cancelled. The socket is closed on return.
func (b *Broadcaster) Run(ctx context.Context) error {
	defer b.conn.Close()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("Announcing %s on %s every %v", string(b.payload), b.dst, b.interval)
	b.announce()

	for {
		select {
		case <-ctx.Done():
			b.logger.Debug("Broadcaster stopped")
			return nil
		case <-ticker.C:
			b.announce()
		}
	}
}

func (b *Broadcaster) announce() {
	if _, err := b.conn.WriteTo(b.payload, nil, b.dst); err != nil {
		incAnnouncementsFailed(1)
		b.logger.Warn("Failed to send announcement to %s: %v", b.dst, err)
		return
	}
	incAnnouncementsSent(1)
	b.logger.Debug("Sent announcement %s", string(b.payload))
}
