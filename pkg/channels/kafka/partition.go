package kafka

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/docstates/pkg/events"
)

// partitionKey keeps all events of a document on one partition.
func partitionKey(_ string, msg *message.Message) (string, error) {
	if key := msg.Metadata.Get(events.EventMetadataKey); key != "" {
		return key, nil
	}

	return msg.UUID, nil
}
