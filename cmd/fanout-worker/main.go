package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/classhive/collab/internal/chat"
	"github.com/classhive/collab/internal/config"
	"github.com/classhive/collab/internal/db"
	"github.com/classhive/collab/internal/feed"
	"github.com/classhive/collab/internal/forum"
	"github.com/classhive/collab/internal/logging"
	"github.com/classhive/collab/internal/notifications"
	"github.com/classhive/collab/internal/store/rabbitmq"
	"github.com/classhive/collab/internal/store/redisstore"
	"github.com/classhive/collab/internal/users"
)

const maxRetries = 3

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	defer logger.Sync()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	usersRepo := users.NewRepo(gdb)
	chatRepo := chat.NewRepo(gdb)
	forumRepo := forum.NewRepo(gdb)
	notifRepo := notifications.NewRepo(gdb)

	// The worker only needs a broker for notification row events; nothing
	// subscribes in this process, so publishes are dropped on the floor.
	broker := feed.NewBroker(cfg.FeedBuffer, logger)

	notifSvc := notifications.NewService(notifRepo, usersRepo, chatRepo, forumRepo, broker, rds, nil, logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal("queue declare", zap.Error(err))
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("fanout worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency),
	)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, ch, cfg.RabbitQueue, notifSvc, logger.With(zap.Int("worker", workerID)), d)
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, ch *amqp.Channel, queue string, svc *notifications.Service, logger *zap.Logger, d amqp.Delivery) {
	var m rabbitmq.JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		logger.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false) // straight to the DLQ
		return
	}

	start := time.Now()
	if err := svc.FanOutAnnouncement(ctx, m.JobID); err != nil {
		logger.Error("job failed",
			zap.String("job_id", m.JobID),
			zap.Duration("cost", time.Since(start)),
			zap.Error(err),
		)
		retryOrBury(ctx, ch, queue, logger, d)
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Error("ack failed", zap.String("job_id", m.JobID), zap.Error(err))
	}
}

// retryOrBury republishes a failed delivery onto the retry queue until it has
// been through maxRetries attempts, then dead-letters it.
func retryOrBury(ctx context.Context, ch *amqp.Channel, queue string, logger *zap.Logger, d amqp.Delivery) {
	if deathCount(d) >= maxRetries {
		_ = d.Nack(false, false)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := ch.PublishWithContext(pctx, "", queue+".retry", false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Headers:      d.Headers,
		Expiration:   "5000",
	})
	if err != nil {
		logger.Error("retry publish failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func deathCount(d amqp.Delivery) int64 {
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	var total int64
	for _, raw := range deaths {
		death, ok := raw.(amqp.Table)
		if !ok {
			continue
		}
		if n, ok := death["count"].(int64); ok {
			total += n
		}
	}
	return total
}
