package broker

import (
	"crypto/tls"

	"github.com/streadway/amqp"
)

// fakeDialer, fakeConnection and fakeChannel stand in for the real
// streadway/amqp transport in tests, modeled directly on the teacher's
// queue/amqp_mock.go (MockAMQPDialer/MockAMQPConnection/MockAMQPChannel).
type fakeDialer struct {
	conn    *fakeConnection
	dialErr error
	dials   int
}

func (f *fakeDialer) Dial(url string, properties amqp.Table, tlsConfig *tls.Config) (connection, error) {
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return f.conn, nil
}

type fakeConnection struct {
	ch       *fakeChannel
	closed   bool
	channels int
}

func (f *fakeConnection) Channel() (channel, error) {
	f.channels++
	return f.ch, nil
}

func (f *fakeConnection) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConnection) IsClosed() bool {
	return f.closed
}

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

type fakeChannel struct {
	qosPrefetch int
	published   []publishedMessage
	deliveries  chan amqp.Delivery
	closed      bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.qosPrefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.published = append(f.published, publishedMessage{exchange: exchange, routingKey: key, msg: msg})
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

// fakeAcknowledger records ack/reject calls so tests can assert on
// delivery settlement without a real broker connection.
type fakeAcknowledger struct {
	acked     []uint64
	rejected  []rejectCall
}

type rejectCall struct {
	tag     uint64
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.rejected = append(a.rejected, rejectCall{tag: tag, requeue: requeue})
	return nil
}
