package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/runnable/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const SequenceNumberMetadataKey = "sequence_number"

// PublisherManager is used to distribute messages to a set of Publishers.
// As such, you "subscribe" a publisher to the given topic.
// When you Publish a message, it will get distributed to all publishers
// on the topic they were subscribed with.
//
// The Manager also keeps a sequence number for each outgoing message,
// in the order they are handled by Publish. Every publisher is wrapped so that outgoing
// messages carry a correlation id.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, pub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], helpers.CorrelationPublisherDecorator{Publisher: pub})
}

// Publish serializes payload to JSON and distributes it to all Publishers across all
// topics, with the given metadata. It returns the first publish failure, after trying
// every publisher.
func (s *PublisherManager) Publish(payload interface{}, metadata map[string]string) error {
	// the lock also orders the sequence numbers with the actual publishing
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "could not serialize event")
	}

	seq := fmt.Sprintf("%d", s.sequenceNumber)
	s.sequenceNumber++

	var firstErr error
	for topic, pubs := range s.Publishers {
		for _, pub := range pubs {
			msg := message.NewMessage(watermill.NewUUID(), b)
			for k, v := range metadata {
				msg.Metadata.Set(k, v)
			}
			msg.Metadata.Set(SequenceNumberMetadataKey, seq)
			if err := pub.Publish(topic, msg); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to publish")
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "could not publish to %s", topic)
				}
			}
		}
	}

	return firstErr
}

func (s *PublisherManager) PublishBlind(payload interface{}, metadata map[string]string) {
	err := s.Publish(payload, metadata)
	if err != nil {
		log.Warn().Err(err).Msg("failed to publish")
	}
}
