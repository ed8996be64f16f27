// Package version provides build version information for the daemon.
// This is a separate package to avoid import cycles between the server
// and client packages, both of which advertise the version on the wire.
package version

// Version is the build version string, set by ldflags during build.
// The UI sends it back in the Transfer-Manager-Version header and the
// daemon rejects mismatches with 412, so stale daemons get restarted
// instead of silently misbehaving.
var Version = "v1.3.0"

// BuildTime is the build timestamp, set by ldflags during build.
var BuildTime = "unknown"

// ServiceName identifies this daemon in /api/transfer_manager_info.
const ServiceName = "transfer_manager"
