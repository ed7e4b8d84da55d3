// Package scheduler owns the asynq work queue: the enqueue client used by
// the API process, the worker that executes distribution and delivery tasks,
// and the sweeper that re-feeds the queue from the database.
package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"leadflow_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues distribution and delivery tasks. It satisfies the enqueuer
// ports of the leads, distribution, and delivery modules.
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient creates the enqueue side of the work queue.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueDistribution queues a pending lead for assignment.
func (c *Client) EnqueueDistribution(ctx context.Context, leadID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewDistributeLeadTask(DistributeLeadPayload{LeadID: leadID.String()})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

// EnqueueDelivery queues a committed assignment for dispatch.
func (c *Client) EnqueueDelivery(ctx context.Context, leadID, partnerID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewDeliverLeadTask(DeliverLeadPayload{
		LeadID:    leadID.String(),
		PartnerID: partnerID.String(),
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
