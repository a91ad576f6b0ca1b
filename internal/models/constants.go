package models

// Response status values used in {status, message} bodies
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Dispatch outcome constants
const (
	DispatchStatusSuccess     = "success"
	DispatchStatusFailed      = "failed"
	DispatchStatusUnreachable = "unreachable"
	DispatchStatusNotFound    = "not_found"
)

// Peer RPC paths. The controller and the worker both serve HeartbeatPath.
const (
	RegisterPath  = "/register_daemon"
	HeartbeatPath = "/heartbeat"
	LaunchPath    = "/launch_account"
)

// AnnouncementPrefix starts every discovery datagram
const AnnouncementPrefix = "SERVER_IP"
