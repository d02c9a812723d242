package app

import (
	"reflect"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitKafkaProducer_NoBrokersConfigured(t *testing.T) {
	logger := log.WithField("test", "kafka-init")

	// Пустая строка брокеров — штатный режим без Kafka, а не ошибка.
	for _, brokers := range []string{"", "   ", " , , "} {
		producer, err := initKafkaProducer(brokers, logger)
		if err != nil {
			t.Errorf("initKafkaProducer(%q): unexpected error %v", brokers, err)
		}
		if producer != nil {
			t.Errorf("initKafkaProducer(%q): producer must stay nil", brokers)
		}
	}
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka-init")

	brokerSets := []string{
		"invalid-broker:9999",
		"broker1:9092, broker2:9092, broker3:9092",
	}
	for _, brokers := range brokerSets {
		producer, err := initKafkaProducer(brokers, logger)
		if err == nil {
			t.Errorf("initKafkaProducer(%q): expected connection error", brokers)
		}
		if producer != nil {
			t.Errorf("initKafkaProducer(%q): producer must stay nil on error", brokers)
		}
	}
}

func TestParseBrokerList(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", nil},
		{"whitespace only", " ", nil},
		{"single broker", "localhost:9092", []string{"localhost:9092"}},
		{"two brokers", "a:9092,b:9092", []string{"a:9092", "b:9092"}},
		{"padded entries", " a:9092 , b:9092 ", []string{"a:9092", "b:9092"}},
		{"empty entries dropped", "a:9092,,b:9092,", []string{"a:9092", "b:9092"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseBrokerList(tc.input)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseBrokerList(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestCloseKafka_NilProducer(t *testing.T) {
	// Закрытие несозданного producer — no-op без паники.
	closeKafka(nil, log.WithField("test", "kafka-init"))
}
