package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/shadowsync/core/logger"
	"github.com/relabs-tech/shadowsync/shadowstore"
)

// KafkaNotifier writes shadow document changes to a Kafka topic, keyed by
// thing name so changes of one thing stay ordered within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
	log    *logrus.Entry
}

// KafkaBuilder is a builder helper for the KafkaNotifier.
type KafkaBuilder struct {
	// Brokers is the list of broker addresses. This is mandatory.
	Brokers []string
	// Topic is the topic to write to. This is mandatory.
	Topic string
}

type changeEvent struct {
	Thing     string                `json:"thing"`
	Operation shadowstore.Operation `json:"operation"`
	Document  json.RawMessage       `json:"document"`
	Time      time.Time             `json:"time"`
}

// NewKafkaNotifier returns a new notifier. Messages are written
// asynchronously.
func NewKafkaNotifier(b *KafkaBuilder) *KafkaNotifier {
	if len(b.Brokers) == 0 {
		panic("brokers are missing")
	}
	if b.Topic == "" {
		panic("topic is missing")
	}
	log := logger.Default()
	writer := &kafka.Writer{
		Addr:     kafka.TCP(b.Brokers...),
		Topic:    b.Topic,
		Balancer: &kafka.Hash{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorln("kafka write failed:", err)
			}
		},
	}
	return &KafkaNotifier{writer: writer, log: log}
}

// Notify implements the shadowstore.Notifier interface.
func (n *KafkaNotifier) Notify(thing string, operation shadowstore.Operation, payload []byte) {
	value, err := json.Marshal(changeEvent{
		Thing:     thing,
		Operation: operation,
		Document:  payload,
		Time:      time.Now().UTC(),
	})
	if err != nil {
		n.log.Errorln("marshal change event:", err)
		return
	}
	err = n.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(thing),
		Value: value,
	})
	if err != nil {
		n.log.Errorln("enqueue change event:", err)
	}
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
