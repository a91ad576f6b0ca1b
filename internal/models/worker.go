package models

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Address is a reachable (host, port) pair
type Address struct {
	Host string `json:"ip_address"`
	Port int    `json:"port"`
}

// ControllerAddress is the address advertised by discovery announcements
type ControllerAddress = Address

// String returns host:port
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// URL returns the http URL for path on this address
func (a Address) URL(path string) string {
	return "http://" + a.String() + path
}

// Validate checks that the address has a host and a port in range
func (a Address) Validate() error {
	if strings.TrimSpace(a.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrValidation)
	}
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrValidation, a.Port)
	}
	return nil
}

// WorkerRecord represents a registered worker in the fleet
type WorkerRecord struct {
	Nickname     string    `json:"nickname"`
	Address      Address   `json:"address"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RegisterWorkerRequest represents the request a worker sends to join the fleet
type RegisterWorkerRequest struct {
	Nickname  string `json:"nickname"`
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
}

// Address returns the worker address carried by the request
func (r RegisterWorkerRequest) Address() Address {
	return Address{Host: r.IPAddress, Port: r.Port}
}

// Validate checks the registration payload
func (r RegisterWorkerRequest) Validate() error {
	if strings.TrimSpace(r.Nickname) == "" {
		return fmt.Errorf("%w: nickname is required", ErrValidation)
	}
	return r.Address().Validate()
}

// WorkerView is the JSON shape returned by the worker listing
type WorkerView struct {
	Nickname     string    `json:"nickname"`
	IPAddress    string    `json:"ip_address"`
	Port         int       `json:"port"`
	RegisteredAt time.Time `json:"registered_at"`
}

// View flattens a record for listing
func (w WorkerRecord) View() WorkerView {
	return WorkerView{
		Nickname:     w.Nickname,
		IPAddress:    w.Address.Host,
		Port:         w.Address.Port,
		RegisteredAt: w.RegisteredAt,
	}
}

// StatusResponse is the {status, message} body used by every RPC
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
