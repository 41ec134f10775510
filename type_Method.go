package fiscal

import (
	"fmt"
	"strings"
)

// Method is the identification method deciding which open parcels a disposal
// consumes. The set is closed: adding a method means extending Identify.
type Method int

const (
	// FIFO consumes the oldest parcels first.
	FIFO Method = iota
	// LIFO consumes the newest parcels first.
	LIFO
	// SpecificID consumes the parcels explicitly selected by the disposal.
	SpecificID
	// AverageCost pools all open parcels and consumes them proportionally.
	AverageCost
)

func (m Method) String() string {
	switch m {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	case SpecificID:
		return "specific"
	case AverageCost:
		return "average"
	default:
		return "unknown"
	}
}

// ParseMethod parses a string into a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo":
		return FIFO, nil
	case "lifo":
		return LIFO, nil
	case "specific", "specific-id", "specificid":
		return SpecificID, nil
	case "average", "average-cost", "averagecost":
		return AverageCost, nil
	default:
		return 0, fmt.Errorf("unknown identification method: %q", s)
	}
}

func (m Method) MarshalText() ([]byte, error) {
	if m < FIFO || m > AverageCost {
		return nil, fmt.Errorf("unknown identification method: %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(text []byte) error {
	v, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
