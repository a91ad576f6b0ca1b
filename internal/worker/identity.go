package worker

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Hostname returns the machine name used as the default nickname
func Hostname() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to resolve hostname: %w", err)
	}
	return name, nil
}

// ListenFrom binds the first free TCP port at or above basePort on host.
// The returned listener is kept open so the port cannot be taken between
// the search and serving.
func ListenFrom(host string, basePort int) (net.Listener, error) {
	var lastErr error
	for port := basePort; port <= 65535; port++ {
		listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return listener, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free port at or above %d: %w", basePort, lastErr)
}
