package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mayanpathak/Code-Collab/internal/store"
)

// Publisher pushes message.stored events to Kafka for downstream consumers
// (notifications, analytics). It is best-effort: publish failures are logged
// and never affect the chat path. A nil Publisher is a valid no-op.
type Publisher struct {
	writer *kafkago.Writer
	log    *zap.SugaredLogger
}

func NewPublisher(brokers []string, topic string, log *zap.SugaredLogger) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
	}
	return &Publisher{writer: w, log: log}
}

type messageStored struct {
	Event     string `json:"event"`
	Room      string `json:"room"`
	SenderID  string `json:"sender_id"`
	Timestamp string `json:"timestamp"`
}

func (p *Publisher) MessageStored(ctx context.Context, room string, m *store.Message) {
	if p == nil {
		return
	}
	b, err := json.Marshal(messageStored{
		Event:     "message.stored",
		Room:      room,
		SenderID:  m.Sender.ID,
		Timestamp: m.Timestamp,
	})
	if err != nil {
		return
	}
	msg := kafkago.Message{Key: []byte(room), Value: b, Time: time.Now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warnw("kafka publish failed", "room", room, "err", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
