// Package kafka builds watermill Kafka publishers and subscribers from the KAFKA_BROKERS environment variable.
package kafka

import (
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

var ErrNoBrokers = errors.New("KAFKA_BROKERS environment variable is not set or empty")

func brokerList() ([]string, error) {
	list := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if len(list) == 0 || list[0] == "" {
		return nil, ErrNoBrokers
	}

	return list, nil
}

// CreateChannel returns a publisher and a consumer-group subscriber. Members of the same
// service share the group so each message is handled by one of them.
func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	brokers, err := brokerList()
	if err != nil {
		return nil, nil, err
	}

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         "cg-" + serviceName,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := CreatePublisher(logger)
	if err != nil {
		return nil, nil, err
	}

	return publisher, subscriber, nil
}

func CreatePublisher(logger watermill.LoggerAdapter) (*kafka.Publisher, error) {
	brokers, err := brokerList()
	if err != nil {
		return nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true

	return kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
}

// CreateBroadcastSubscriber returns a subscriber without a consumer group that starts at the
// newest offset, so every process sees every message published after it connected.
func CreateBroadcastSubscriber(logger watermill.LoggerAdapter) (*kafka.Subscriber, error) {
	brokers, err := brokerList()
	if err != nil {
		return nil, err
	}

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	return kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig,
			OTELEnabled:           true,
		},
		logger,
	)
}
