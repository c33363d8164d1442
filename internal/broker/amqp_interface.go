package broker

import (
	"crypto/tls"

	"github.com/streadway/amqp"
)

// connection is the subset of *amqp.Connection the broker manager needs.
// Declared as an interface, grounded on the teacher's
// queue/amqp_interface.go dependency-injection pattern, so tests can
// substitute a fake without a running RabbitMQ.
type connection interface {
	Channel() (channel, error)
	Close() error
	IsClosed() bool
}

// channel is the subset of *amqp.Channel the broker manager needs,
// extended from the teacher's AMQPChannel with Qos (required by the
// spec's QoS prefetch=1 contract, which the teacher's publish-only
// service never needed).
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// dialer abstracts connection establishment so tests can inject a fake
// dialer, matching the teacher's AMQPDialer. properties carries the
// client_properties metadata (hostname/pid/process name) the original
// attaches to every connection; tlsConfig is nil for plain amqp://.
type dialer interface {
	Dial(url string, properties amqp.Table, tlsConfig *tls.Config) (connection, error)
}

// realConnection wraps *amqp.Connection.
type realConnection struct {
	conn *amqp.Connection
}

func (r *realConnection) Channel() (channel, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &realChannel{ch: ch}, nil
}

func (r *realConnection) Close() error {
	return r.conn.Close()
}

func (r *realConnection) IsClosed() bool {
	return r.conn.IsClosed()
}

// realChannel wraps *amqp.Channel.
type realChannel struct {
	ch *amqp.Channel
}

func (r *realChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return r.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (r *realChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return r.ch.Qos(prefetchCount, prefetchSize, global)
}

func (r *realChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return r.ch.Publish(exchange, key, mandatory, immediate, msg)
}

func (r *realChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return r.ch.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (r *realChannel) Close() error {
	return r.ch.Close()
}

// realDialer implements dialer using the real streadway/amqp library.
type realDialer struct{}

func (realDialer) Dial(url string, properties amqp.Table, tlsConfig *tls.Config) (connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Properties:      properties,
		TLSClientConfig: tlsConfig,
	})
	if err != nil {
		return nil, err
	}
	return &realConnection{conn: conn}, nil
}
