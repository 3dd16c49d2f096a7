package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/docstates/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "test")
	require.ErrorIs(t, err, ErrNoBrokers)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("uuid-1", nil)

	key, err := partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", key)

	msg.Metadata.Set(events.EventMetadataKey, "doc-1")

	key, err = partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", key)
}
