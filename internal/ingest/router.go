package ingest

import "strings"

// Kind identifies which payload family a topic carries.
type Kind int

const (
	KindUnknown Kind = iota
	KindScan
	KindStatus
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindStatus:
		return "status"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ParseTopic maps an MQTT topic to a payload kind.
//
//	rtls/anchor/<anchor_id>/scan   → scan
//	rtls/anchor/<anchor_id>/status → status
//	rtls/events                    → event
//
// The <anchor_id> segment is not authoritative; the anchor_id inside the
// payload is what gets persisted.
func ParseTopic(topic string) Kind {
	if topic == "rtls/events" {
		return KindEvent
	}
	if strings.HasPrefix(topic, "rtls/anchor/") {
		switch {
		case strings.HasSuffix(topic, "/scan"):
			return KindScan
		case strings.HasSuffix(topic, "/status"):
			return KindStatus
		}
	}
	return KindUnknown
}
