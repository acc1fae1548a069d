// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ExchangeID string
type LeaveRequestID string

func NewExchangeID() ExchangeID {
	return ExchangeID(uuid.New().String())
}

// NewLeaveRequestID returns an id of the form LR-1A2B3C4D.
func NewLeaveRequestID() LeaveRequestID {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return LeaveRequestID("LR-" + strings.ToUpper(hex[:8]))
}
