package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"podmill/internal/config"
	"podmill/internal/logging"
	"podmill/internal/services"
)

const (
	// attemptsHeader counts deliveries of a task so the consumer can stop
	// cycling it through the retry queue.
	attemptsHeader = "x-podmill-attempts"
	maxDeliveries  = 3
	retryDelay     = 30 * time.Second

	defaultPublishTimeout = 5 * time.Second
)

// Broker dispatches tasks through RabbitMQ. Publishing and consuming share
// one process here, but nothing couples them: the durable queue means the
// daemon can restart without losing accepted work, and the consumer could
// move to a separate binary without touching the producer side.
//
// Topology: the main queue dead-letters rejected tasks to <queue>.dlq, and
// failed tasks under the delivery budget are republished to <queue>.retry,
// whose TTL dead-letters them back to the main queue after a delay.
type Broker struct {
	logger  *slog.Logger
	process ProcessFunc

	conn  *amqp.Connection
	pubMu sync.Mutex
	pubCh *amqp.Channel
	conCh *amqp.Channel

	exchange       string
	queue          string
	publishTimeout time.Duration

	runCtx       context.Context
	cancel       context.CancelFunc
	consumerDone chan struct{}

	mu      sync.Mutex
	stopped bool
}

// NewBroker connects to RabbitMQ, declares the queue topology, and starts a
// consumer with the given worker count.
func NewBroker(cfg config.RabbitMQ, workers int, process ProcessFunc, logger *slog.Logger) (*Broker, error) {
	if cfg.URL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "dispatch", "connect", "rabbitmq url not configured", nil)
	}
	if cfg.Queue == "" {
		return nil, services.Wrap(services.ErrConfiguration, "dispatch", "connect", "rabbitmq queue not configured", nil)
	}
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	publishTimeout := defaultPublishTimeout
	if cfg.PublishTimeout > 0 {
		publishTimeout = time.Duration(cfg.PublishTimeout) * time.Second
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "dispatch", "connect", "rabbitmq dial failed", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, services.Wrap(services.ErrUnavailable, "dispatch", "connect", "rabbitmq channel failed", err)
	}
	if err := declareTopology(pubCh, cfg.Exchange, cfg.Queue); err != nil {
		_ = pubCh.Close()
		_ = conn.Close()
		return nil, err
	}
	conCh, err := conn.Channel()
	if err != nil {
		_ = pubCh.Close()
		_ = conn.Close()
		return nil, services.Wrap(services.ErrUnavailable, "dispatch", "connect", "rabbitmq channel failed", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		logger:         logging.NewComponentLogger(logger, "dispatch"),
		process:        process,
		conn:           conn,
		pubCh:          pubCh,
		conCh:          conCh,
		exchange:       cfg.Exchange,
		queue:          cfg.Queue,
		publishTimeout: publishTimeout,
		runCtx:         runCtx,
		cancel:         cancel,
		consumerDone:   make(chan struct{}),
	}
	if err := b.startConsumer(workers); err != nil {
		cancel()
		_ = conCh.Close()
		_ = pubCh.Close()
		_ = conn.Close()
		return nil, err
	}
	b.logger.Info("broker runner started",
		logging.Args(
			logging.String("queue", cfg.Queue),
			logging.Int("workers", workers),
		)...)
	return b, nil
}

// declareTopology sets up the DLQ first, then the retry queue dead-lettering
// back to the main queue, then the main queue dead-lettering to the DLQ.
// When an exchange name is configured the main queue is bound to it and
// publishes route through it; retry and DLQ traffic always uses the default
// exchange so dead-letter routing keys stay plain queue names.
func declareTopology(ch *amqp.Channel, exchange, queue string) error {
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return services.Wrap(services.ErrUnavailable, "dispatch", "declare", "dlq declare failed", err)
	}
	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return services.Wrap(services.ErrUnavailable, "dispatch", "declare", "retry queue declare failed", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		return services.Wrap(services.ErrUnavailable, "dispatch", "declare", "queue declare failed", err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
			return services.Wrap(services.ErrUnavailable, "dispatch", "declare", "exchange declare failed", err)
		}
		if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
			return services.Wrap(services.ErrUnavailable, "dispatch", "declare", "queue bind failed", err)
		}
	}
	return nil
}

// Dispatch publishes a task as a persistent JSON message.
func (b *Broker) Dispatch(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		return services.Wrap(services.ErrUnavailable, "dispatch", "enqueue", "runner stopped", nil)
	}

	body, err := json.Marshal(task)
	if err != nil {
		return services.Wrap(services.ErrValidation, "dispatch", "enqueue", "task encode failed", err)
	}
	return b.publish(ctx, b.exchange, b.queue, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

func (b *Broker) publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	cctx, cancel := context.WithTimeout(ctx, b.publishTimeout)
	defer cancel()

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	if err := b.pubCh.PublishWithContext(cctx, exchange, routingKey, false, false, msg); err != nil {
		return services.Wrap(services.ErrUnavailable, "dispatch", "enqueue", "publish failed", err)
	}
	return nil
}

// Stop shuts down the consumer, waits for in-flight tasks until ctx expires,
// and closes the connection. Unacked deliveries return to the queue.
func (b *Broker) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	b.cancel()
	var err error
	select {
	case <-b.consumerDone:
	case <-ctx.Done():
		err = ctx.Err()
	}
	_ = b.conCh.Close()
	b.pubMu.Lock()
	_ = b.pubCh.Close()
	b.pubMu.Unlock()
	_ = b.conn.Close()
	if err == nil {
		b.logger.Info("broker runner stopped")
	}
	return err
}

func (b *Broker) startConsumer(workers int) error {
	if err := b.conCh.Qos(workers, 0, false); err != nil {
		return services.Wrap(services.ErrUnavailable, "dispatch", "consume", "qos failed", err)
	}
	deliveries, err := b.conCh.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "dispatch", "consume", "consume failed", err)
	}

	jobs := make(chan amqp.Delivery, workers*2)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				b.handle(workerID, d)
			}
		}(i)
	}

	go func() {
		defer close(b.consumerDone)
		for {
			select {
			case <-b.runCtx.Done():
				close(jobs)
				wg.Wait()
				return
			case d, ok := <-deliveries:
				if !ok {
					b.logger.Error("delivery channel closed",
						logging.Args(
							logging.String(logging.FieldEventType, "broker_disconnect"),
							logging.String(logging.FieldErrorHint, "restart the daemon or check the broker"),
						)...)
					close(jobs)
					wg.Wait()
					return
				}
				jobs <- d
			}
		}
	}()
	return nil
}

func (b *Broker) handle(workerID int, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("task panicked",
				logging.Args(
					logging.Int("worker", workerID),
					logging.Any("panic", r),
					logging.String(logging.FieldEventType, "task_panic"),
				)...)
			_ = d.Nack(false, false)
		}
	}()

	var task Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		b.logger.Error("bad task message",
			logging.Args(logging.Int("worker", workerID), logging.Error(err))...)
		_ = d.Nack(false, false)
		return
	}
	if err := task.Validate(); err != nil {
		b.logger.Error("bad task message",
			logging.Args(logging.Int("worker", workerID), logging.Error(err))...)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := b.process(b.runCtx, task)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			b.logger.Error("ack failed",
				logging.Args(
					logging.Int("worker", workerID),
					logging.String(logging.FieldJobID, task.JobID),
					logging.Error(ackErr),
				)...)
		}
		return
	}

	attempt := deliveryAttempts(d.Headers) + 1
	b.logger.Error("task failed",
		logging.Args(
			logging.Int("worker", workerID),
			logging.String(logging.FieldJobID, task.JobID),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("task_duration", time.Since(start)),
			logging.Error(err),
		)...)

	if attempt >= maxDeliveries || !services.Retryable(err) {
		// Reject without requeue so the main queue dead-letters to the DLQ.
		_ = d.Nack(false, false)
		b.logger.Warn("task dead-lettered",
			logging.Args(
				logging.String(logging.FieldJobID, task.JobID),
				logging.Int(logging.FieldAttempt, attempt),
				logging.String(logging.FieldEventType, "task_dead_letter"),
				logging.String(logging.FieldErrorHint, "inspect the dlq and republish after fixing the cause"),
			)...)
		return
	}

	if pubErr := b.requeue(d.Body, attempt); pubErr != nil {
		b.logger.Error("retry publish failed",
			logging.Args(logging.String(logging.FieldJobID, task.JobID), logging.Error(pubErr))...)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
	b.logger.Info("task scheduled for retry",
		logging.Args(
			logging.String(logging.FieldJobID, task.JobID),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("retry_delay", retryDelay),
		)...)
}

// requeue publishes a copy of the failed task onto the retry queue. Message
// TTL expiry dead-letters it back onto the main queue.
func (b *Broker) requeue(body []byte, attempts int) error {
	return b.publish(b.runCtx, "", b.queue+".retry", amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		Expiration:   strconv.Itoa(int(retryDelay / time.Millisecond)),
		Headers:      amqp.Table{attemptsHeader: int32(attempts)},
	})
}

// deliveryAttempts reads the attempt counter from message headers. AMQP
// tables carry numbers in whatever width the client encoded, so accept the
// common integer types and treat anything else as a first delivery.
func deliveryAttempts(headers amqp.Table) int {
	v, ok := headers[attemptsHeader]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
