package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/config"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

var ErrClosed = errors.New("producer is closed")

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers JSON payloads for one topic. Flush and Close are owned by
// the caller; Close flushes first and Discard drops the buffer. Both are safe
// to call more than once.
type Producer struct {
	mu          sync.Mutex
	writer      MessageWriter
	topic       string
	buf         []kafka.Message
	flushEvery  int
	sendTimeout time.Duration
	sent        int64
	closed      bool
}

func NewWithWriter(w MessageWriter, topic string, cfg config.Stream) *Producer {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 100
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Producer{
		writer:      w,
		topic:       topic,
		flushEvery:  cfg.FlushEvery,
		sendTimeout: cfg.SendTimeout,
	}
}

// Brokers splits a kafka:// bootstrap URL into broker addresses.
func Brokers(url string) []string {
	url = strings.TrimPrefix(url, "kafka://")
	if idx := strings.Index(url, "/"); idx >= 0 {
		url = url[:idx]
	}
	var brokers []string
	for _, b := range strings.Split(url, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Dial verifies the bootstrap endpoint and returns a producer for topic.
func Dial(ctx context.Context, src *types.DataSource, topic string, cfg config.Stream) (*Producer, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	brokers := Brokers(src.URL)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("data source %q has no bootstrap servers", src.Name)
	}

	dialer := &kafka.Dialer{Timeout: cfg.ConnectTimeout, DualStack: true}
	transport := &kafka.Transport{DialTimeout: cfg.ConnectTimeout}
	if src.Username != "" {
		mechanism := plain.Mechanism{Username: src.Username, Password: src.Secret()}
		dialer.SASLMechanism = mechanism
		transport.SASL = mechanism
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	conn, err := dialer.DialContext(dialCtx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to reach kafka at %s: %w", brokers[0], err)
	}
	conn.Close()

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           cfg.SendTimeout,
		AllowAutoTopicCreation: true,
		Transport:              transport,
	}
	return NewWithWriter(w, topic, cfg), nil
}

func (p *Producer) Topic() string {
	return p.topic
}

// Sent is the number of messages acknowledged by the broker.
func (p *Producer) Sent() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// SendRow encodes row as JSON and queues it, flushing when the buffer is full.
func (p *Producer) SendRow(ctx context.Context, key string, row map[string]interface{}) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	return p.Send(ctx, key, payload)
}

func (p *Producer) Send(ctx context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	msg := kafka.Message{Value: payload, Time: time.Now()}
	if key != "" {
		msg.Key = []byte(key)
	}
	p.buf = append(p.buf, msg)
	if len(p.buf) >= p.flushEvery {
		return p.flushLocked(ctx)
	}
	return nil
}

func (p *Producer) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return p.flushLocked(ctx)
}

func (p *Producer) flushLocked(ctx context.Context) error {
	if len(p.buf) == 0 {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(sendCtx, p.buf...); err != nil {
		return fmt.Errorf("failed to send %d messages to %s: %w", len(p.buf), p.topic, err)
	}
	p.sent += int64(len(p.buf))
	p.buf = p.buf[:0]
	return nil
}

// Close flushes what is buffered and releases the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	flushErr := p.flushLocked(context.Background())
	return errors.Join(flushErr, p.writer.Close())
}

// Discard drops what is buffered and releases the writer. Nothing queued
// since the last flush reaches the topic.
func (p *Producer) Discard() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil
	}
	p.closed = true
	dropped := len(p.buf)
	p.buf = nil
	return dropped, p.writer.Close()
}
