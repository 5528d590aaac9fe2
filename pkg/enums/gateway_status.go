package enums

import "fmt"

// GatewayStatus is the remote deposit status as reported by the gateway.
type GatewayStatus string

const (
	GatewayStatusPending    GatewayStatus = "pending"
	GatewayStatusSuccess    GatewayStatus = "success"
	GatewayStatusProcessing GatewayStatus = "processing"
	GatewayStatusCancelled  GatewayStatus = "cancelled"
	GatewayStatusExpired    GatewayStatus = "expired"
)

var validGatewayStatuses = []GatewayStatus{
	GatewayStatusPending,
	GatewayStatusSuccess,
	GatewayStatusProcessing,
	GatewayStatusCancelled,
	GatewayStatusExpired,
}

// String implements fmt.Stringer.
func (s GatewayStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known GatewayStatus.
func (s GatewayStatus) IsValid() bool {
	for _, candidate := range validGatewayStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Settled reports whether the remote deposit has been paid.
func (s GatewayStatus) Settled() bool {
	return s == GatewayStatusSuccess || s == GatewayStatusProcessing
}

// Abandoned reports whether the remote deposit can no longer settle.
func (s GatewayStatus) Abandoned() bool {
	return s == GatewayStatusCancelled || s == GatewayStatusExpired
}

// ParseGatewayStatus converts raw input into a GatewayStatus.
func ParseGatewayStatus(value string) (GatewayStatus, error) {
	for _, candidate := range validGatewayStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway status %q", value)
}
