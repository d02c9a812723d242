package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// parseBrokerList разбирает строку вида "host1:9092, host2:9092".
func parseBrokerList(brokers string) []string {
	var list []string
	for _, part := range strings.Split(brokers, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}

// initKafkaProducer создаёт producer при непустом списке брокеров.
// Пустой список не ошибка: сервис работает без Kafka, а события
// копятся в outbox до следующего запуска.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	list := parseBrokerList(brokers)
	if len(list) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(list)
	if err != nil {
		logger.WithError(err).Warn("kafka producer init failed, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", list).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer shutdown error")
		return
	}
	logger.Info("kafka producer closed")
}
