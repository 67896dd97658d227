package events

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-pulse/backend/internal/models"
)

func TestEncodeFrameLayout(t *testing.T) {
	sid := uuid.New()
	frame, err := Encode(ParticipantLeft{SessionID: sid, ParticipantID: uuid.New()})
	require.NoError(t, err)

	s := string(frame)
	assert.True(t, strings.HasPrefix(s, "event: participant_left\ndata: {"))
	assert.True(t, strings.HasSuffix(s, "}\n\n"))
	assert.Equal(t, 3, strings.Count(s, "\n"))
	assert.Contains(t, s, sid.String())
}

func TestDecodeRoundTripCompleted(t *testing.T) {
	ev := ParticipantCompleted{
		SessionID:     uuid.New(),
		ParticipantID: uuid.New(),
		Scores:        models.PreferenceScores{Innovation: 80, Sustainability: 40, Community: 10, Convenience: 55},
		CompletedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	frame, err := Encode(ev)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(frame)), "\n")
	require.Len(t, lines, 2)
	got, err := Decode(strings.TrimPrefix(lines[0], "event: "), []byte(strings.TrimPrefix(lines[1], "data: ")))
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("participant_joined", []byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode("poll_launched", []byte("{}"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeEmptyHeartbeat(t *testing.T) {
	ev, err := Decode("heartbeat", nil)
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, ev.Kind())
}
