package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently across
// all log statements so the protocol handler, acceptor, and store layers
// stay queryable against a single schema.
const (
	KeyConnectionID = "connection_id" // internal connection identifier
	KeyClientIP     = "client_ip"     // client IP address
	KeyUsername     = "username"      // authenticated or claimed username
	KeyDeviceName   = "device_name"   // device name involved in the operation
	KeyMessageType  = "message_type"  // wire message type label
	KeyErrorCode    = "error_code"    // numeric protocol error code
	KeyError        = "error"         // error message
	KeyDurationMs   = "duration_ms"   // operation duration in milliseconds
	KeyToken        = "token"         // pairing token (logged truncated, never the private key)
	KeyGroupID      = "group_id"      // modular-exponentiation group identifier
)

// ConnectionID returns a slog.Attr for the connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// ClientIP returns a slog.Attr for the client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Username returns a slog.Attr for a username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// DeviceName returns a slog.Attr for a device name
func DeviceName(name string) slog.Attr {
	return slog.String(KeyDeviceName, name)
}

// MessageType returns a slog.Attr for the wire message type label
func MessageType(label string) slog.Attr {
	return slog.String(KeyMessageType, label)
}

// ErrorCode returns a slog.Attr for a numeric protocol error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for a duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Token returns a slog.Attr for a pairing token, truncated to 8 characters
// since the full token is a bearer credential for the pairing handoff.
func Token(token string) slog.Attr {
	if len(token) > 8 {
		token = token[:8] + "…"
	}
	return slog.String(KeyToken, token)
}

// GroupID returns a slog.Attr for a modular-exponentiation group identifier
func GroupID(id string) slog.Attr {
	return slog.String(KeyGroupID, id)
}
