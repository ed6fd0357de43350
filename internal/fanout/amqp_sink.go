package fanout

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"
)

// AMQPSink publishes enriched messages to a durable exchange, mirroring
// billglover-go-adsb-console's RabbitMQ publisher.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.ch.Publish(s.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        b,
		Timestamp:   ev.Time,
	})
}

func (s *AMQPSink) Close() error {
	s.ch.Close()
	return s.conn.Close()
}
