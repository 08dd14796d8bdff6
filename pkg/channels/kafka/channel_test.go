package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "automation-worker")

	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestPartitionKey(t *testing.T) {
	keyed := message.NewMessage("uuid-1", nil)
	keyed.Metadata.Set(events.EventMetadataKey, "enrollment-1")

	key, err := partitionKey(events.Topic, keyed)
	require.NoError(t, err)
	assert.Equal(t, "enrollment-1", key)

	key, err = partitionKey(events.Topic, message.NewMessage("uuid-2", nil))
	require.NoError(t, err)
	assert.Equal(t, "uuid-2", key)
}
