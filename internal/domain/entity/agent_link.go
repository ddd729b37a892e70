package entity

import "time"

// LinkDirection controls which ordered (from, to) pairs a delegation link permits.
type LinkDirection string

const (
	LinkOutbound      LinkDirection = "outbound"
	LinkInbound       LinkDirection = "inbound"
	LinkBidirectional LinkDirection = "bidirectional"
)

// ParseLinkDirection parses the lowercase wire representation, defaulting to
// the safest value (outbound) for anything unrecognized — matches the
// DataStore contract that unknown enum values never widen permissions.
func ParseLinkDirection(s string) LinkDirection {
	switch LinkDirection(s) {
	case LinkInbound:
		return LinkInbound
	case LinkBidirectional:
		return LinkBidirectional
	default:
		return LinkOutbound
	}
}

// AgentLink governs whether one named agent may delegate to another.
type AgentLink struct {
	ID            string
	Source        string
	Target        string
	Direction     LinkDirection
	MaxConcurrent int
	Settings      map[string]interface{}
	CreatedAt     time.Time
}

// Allows reports whether this link permits delegation from "from" to "to".
func (l *AgentLink) Allows(from, to string) bool {
	if from == l.Source && to == l.Target {
		switch l.Direction {
		case LinkOutbound, LinkBidirectional:
			return true
		default:
			return false
		}
	}
	if from == l.Target && to == l.Source {
		switch l.Direction {
		case LinkInbound, LinkBidirectional:
			return true
		default:
			return false
		}
	}
	return false
}
