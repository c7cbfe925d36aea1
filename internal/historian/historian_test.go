// internal/historian/historian_test.go
package historian

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarveslive/unit-card-battles/internal/cache"
)

// The consumer decodes whatever the engine pushed onto the queue; this checks
// the two sides agree on the envelope.
func TestQueueRecordDecode(t *testing.T) {
	rec := cache.MatchActionRecord{
		MatchID:       uuid.New(),
		ActionIndex:   3,
		ActorUserID:   uuid.New(),
		ActionType:    "action_attack",
		ActionPayload: map[string]interface{}{"cardId": uuid.New().String()},
		Timestamp:     time.Now().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded cache.MatchActionRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec.MatchID, decoded.MatchID)
	assert.Equal(t, rec.ActionType, decoded.ActionType)
	assert.Equal(t, rec.ActionIndex, decoded.ActionIndex)
}

func TestAppendBelowThresholdDoesNotFlush(t *testing.T) {
	hs := NewService()
	hs.batchSize = 5

	for i := 0; i < 3; i++ {
		hs.appendToBatch(cache.MatchActionRecord{
			MatchID:     uuid.New(),
			ActionIndex: i,
			ActionType:  "action_draw",
		})
	}

	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	assert.Len(t, hs.batch, 3)
}
