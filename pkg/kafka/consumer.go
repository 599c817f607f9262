package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer wraps Kafka readers with a worker pool. One reader per
// registered topic, all feeding a shared worker channel.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	msgChan  chan *message
	stopChan chan struct{}
	stopOnce sync.Once
	readerWg sync.WaitGroup
	workerWg sync.WaitGroup
}

type message struct {
	topic string
	data  []byte
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  64,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	registerConsumerMetrics()

	return &Consumer{
		cfg:      cfg,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		msgChan:  make(chan *message, cfg.BufferSize),
		stopChan: make(chan struct{}),
	}, nil
}

// RegisterHandler registers a message handler for its topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		log.Printf("warn: handler already registered for topic %s", topic)
		return
	}
	c.handlers[topic] = handler
}

// Start creates a reader per registered topic and launches the worker pool.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workerWg.Add(1)
		go c.worker()
	}

	for topic, reader := range c.readers {
		c.readerWg.Add(1)
		go c.readLoop(topic, reader)
	}

	log.Printf("kafka consumer: started topics=%d workers=%d", len(c.readers), c.cfg.WorkerCount)
	return nil
}

// Stop stops the consumer gracefully. Readers exit before the message
// channel closes, so a reader mid-send can never hit a closed channel.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		close(c.stopChan)

		readersDone := make(chan struct{})
		go func() {
			c.readerWg.Wait()
			close(readersDone)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for readers to stop: %w", ctx.Err())
			c.closeReaders()
			return
		case <-readersDone:
		}

		close(c.msgChan)

		workersDone := make(chan struct{})
		go func() {
			c.workerWg.Wait()
			close(workersDone)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for workers to stop: %w", ctx.Err())
		case <-workersDone:
		}

		c.closeReaders()
	})

	return stopErr
}

func (c *Consumer) closeReaders() {
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			log.Printf("error closing reader for topic %s: %v", topic, err)
		}
	}
}

func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.readerWg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := reader.ReadMessage(ctx)
		cancel()

		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("error reading message from topic %s: %v", topic, err)
			}
			continue
		}

		if !c.enqueue(&message{topic: topic, data: msg.Value}) {
			return
		}
	}
}

// enqueue hands a message to the worker pool. Returns false when the
// consumer is stopping and the message was not queued.
func (c *Consumer) enqueue(m *message) bool {
	select {
	case c.msgChan <- m:
		consumerQueueDepth.WithLabelValues(m.topic).Set(float64(len(c.msgChan)))
		return true
	case <-c.stopChan:
		return false
	}
}

func (c *Consumer) worker() {
	defer c.workerWg.Done()

	for msg := range c.msgChan {
		handler, ok := c.handlers[msg.topic]
		if !ok {
			continue
		}

		start := time.Now()
		err := c.handleSafe(handler, msg.data)
		result := "ok"
		if err != nil {
			result = "error"
			log.Printf("handler error topic=%s: %v", msg.topic, err)
		}
		consumerMsgsTotal.WithLabelValues(msg.topic, result).Inc()
		consumerLatencyHist.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}
}

// handleSafe runs the handler with panic recovery so a bad message cannot
// crash the worker pool.
func (c *Consumer) handleSafe(handler MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return handler.Handle(ctx, data)
}

var (
	consumerMsgsTotal   *prometheus.CounterVec
	consumerLatencyHist *prometheus.HistogramVec
	consumerQueueDepth  *prometheus.GaugeVec
	consumerMetricsOnce sync.Once
)

func registerConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerMsgsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finorax_kafka_consumer_messages_total",
				Help: "Total messages consumed from Kafka",
			},
			[]string{"topic", "result"},
		)
		consumerLatencyHist = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finorax_kafka_consumer_handle_seconds",
				Help:    "Handler latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finorax_kafka_consumer_queue_depth",
				Help: "Messages waiting in the worker queue",
			},
			[]string{"topic"},
		)
	})
}
