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

	"lingochat/internal/config"
	"lingochat/internal/jobs"
	"lingochat/internal/ollama"
	"lingochat/internal/storage"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

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
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	db, err := storage.Open(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	repo := jobs.NewRepo(db)
	oc := ollama.NewClient(cfg.OllamaBaseURL, logger)

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

	if _, err := ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	}); err != nil {
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

	logger.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency))

	deliveries := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range deliveries {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					logger.Warn("bad message", zap.Int("worker", workerID), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, logger, repo, oc, m.JobID); err != nil {
					logger.Error("job failed",
						zap.Int("worker", workerID),
						zap.String("job_id", m.JobID),
						zap.Duration("cost", time.Since(start)),
						zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					logger.Error("ack failed", zap.String("job_id", m.JobID), zap.Error(err))
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(deliveries)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			deliveries <- d
		}
	}
}

// handleJob downloads the job's model, mirroring pull progress into the jobs
// table so clients can poll it.
func handleJob(ctx context.Context, logger *zap.Logger, repo *jobs.Repo, oc *ollama.Client, jobID string) error {
	j, err := repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == jobs.StatusSucceeded || j.Status == jobs.StatusFailed {
		return nil
	}

	if err := repo.MarkRunning(ctx, jobID); err != nil {
		return err
	}

	// Progress writes are throttled; the final state comes from the marks
	// below, not from the last progress line.
	lastWrite := time.Now()
	onProgress := func(p ollama.PullProgress) {
		if time.Since(lastWrite) < time.Second {
			return
		}
		lastWrite = time.Now()
		if err := repo.UpdateProgress(ctx, jobID, p.Percent); err != nil {
			logger.Warn("progress update failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	if err := oc.Pull(ctx, j.Model, onProgress); err != nil {
		_ = repo.MarkFailed(ctx, jobID, err.Error())
		return err
	}

	return repo.MarkSucceeded(ctx, jobID)
}
