package kafka

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
)

// partitionKey keeps every event of one key (an enrollment or client) on the same partition.
func partitionKey(_ string, msg *message.Message) (string, error) {
	if key := msg.Metadata.Get(events.EventMetadataKey); key != "" {
		return key, nil
	}

	return msg.UUID, nil
}
