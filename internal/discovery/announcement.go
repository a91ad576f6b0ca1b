// Package discovery lets workers find the controller without static
// configuration. The controller multicasts its address on the local
// subnet; workers listen, register, and keep probing it.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
)

// maxAnnouncementSize bounds a single announcement datagram
const maxAnnouncementSize = 1024

// EncodeAnnouncement renders addr as "SERVER_IP:<host>:<port>"
func EncodeAnnouncement(addr models.ControllerAddress) []byte {
	return []byte(models.AnnouncementPrefix + ":" + addr.Host + ":" + strconv.Itoa(addr.Port))
}

// DecodeAnnouncement parses an announcement datagram. Anything that is not
// exactly prefix, IPv4 host and port is rejected with models.ErrValidation.
func DecodeAnnouncement(data []byte) (models.ControllerAddress, error) {
	message := strings.TrimSpace(string(data))

	parts := strings.Split(message, ":")
	if len(parts) != 3 || parts[0] != models.AnnouncementPrefix {
		return models.ControllerAddress{}, fmt.Errorf("%w: not an announcement: %q", models.ErrValidation, message)
	}

	port, err := strconv.Atoi(parts[2])
	if err != nil {
		return models.ControllerAddress{}, fmt.Errorf("%w: bad port in announcement %q", models.ErrValidation, message)
	}

	addr := models.ControllerAddress{Host: parts[1], Port: port}
	if ip := net.ParseIP(addr.Host); ip == nil || ip.To4() == nil {
		return models.ControllerAddress{}, fmt.Errorf("%w: host in announcement %q is not an IPv4 address", models.ErrValidation, message)
	}
	if err := addr.Validate(); err != nil {
		return models.ControllerAddress{}, err
	}
	return addr, nil
}
