package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned by Decode for an event name outside the known set.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrMalformed is returned by Decode when the data line is not a valid payload.
	ErrMalformed = errors.New("malformed event payload")
)

// Encode renders e as one server-sent-events frame: an event line, a data line, a blank line.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Kind(), err)
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + len(e.Kind()) + 16)
	buf.WriteString("event: ")
	buf.WriteString(string(e.Kind()))
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Decode parses the payload of a frame named kind.
func Decode(kind string, data []byte) (Event, error) {
	switch Kind(kind) {
	case KindConnected:
		return decodeAs[Connected](data)
	case KindHeartbeat:
		if len(bytes.TrimSpace(data)) == 0 {
			return Heartbeat{}, nil
		}
		return decodeAs[Heartbeat](data)
	case KindSnapshot:
		return decodeAs[Snapshot](data)
	case KindParticipantJoined:
		return decodeAs[ParticipantJoined](data)
	case KindParticipantUpdated:
		return decodeAs[ParticipantUpdated](data)
	case KindParticipantCompleted:
		return decodeAs[ParticipantCompleted](data)
	case KindParticipantLeft:
		return decodeAs[ParticipantLeft](data)
	case KindSessionUpdated:
		return decodeAs[SessionUpdated](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
