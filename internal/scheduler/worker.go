package scheduler

import (
	"context"
	"fmt"

	"leadflow_backend/internal/delivery"
	"leadflow_backend/internal/distribution"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes the queue and runs the assignment and dispatch services.
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	distributor *distribution.Service
	dispatcher  *delivery.Service
	log         *logger.Logger
}

// NewWorker creates the consume side of the work queue.
func NewWorker(
	cfg config.SchedulerConfig,
	distributor *distribution.Service,
	dispatcher *delivery.Service,
	log *logger.Logger,
) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:      server,
		mux:         mux,
		distributor: distributor,
		dispatcher:  dispatcher,
		log:         log,
	}

	mux.HandleFunc(TaskDistributeLead, w.handleDistributeLead)
	mux.HandleFunc(TaskDeliverLead, w.handleDeliverLead)

	return w, nil
}

func (w *Worker) handleDistributeLead(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDistributeLeadPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	return w.distributor.Assign(ctx, leadID)
}

func (w *Worker) handleDeliverLead(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDeliverLeadPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	partnerID, err := uuid.Parse(payload.PartnerID)
	if err != nil {
		return err
	}

	return w.dispatcher.Deliver(ctx, leadID, partnerID)
}

// Run blocks until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
