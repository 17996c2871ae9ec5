package repository

import (
	"context"

	"ConfluenceCal/internal/domain/models"
	pkgkafka "ConfluenceCal/pkg/kafka"
)

// KafkaWeightPublisher emits a weights.published event keyed by symbol.
type KafkaWeightPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaWeightPublisher(producer *pkgkafka.Producer, topic string) *KafkaWeightPublisher {
	return &KafkaWeightPublisher{producer: producer, topic: topic}
}

func (p *KafkaWeightPublisher) PublishWeights(ctx context.Context, rec *models.PublishedWeights) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.Symbol), models.WeightsPublishedEvent{
		Type:             models.EventWeightsPublished,
		PublishedWeights: *rec,
	})
}

func (p *KafkaWeightPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaLogPublisher ships aggregated error logs to a topic.
type KafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaLogPublisher(producer *pkgkafka.Producer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}
