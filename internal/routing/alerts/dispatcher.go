package alerts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// Dispatcher enqueues alert and webhook tasks. A nil Dispatcher is a no-op so
// callers without a queue (tests, the dry-run CLI) can skip the wiring.
type Dispatcher struct {
	client *asynq.Client
	queue  string
	log    *logger.Logger
}

func NewDispatcher(cfg config.RoutingConfig, redisCfg config.RedisConfig, log *logger.Logger) (*Dispatcher, error) {
	redisURL := redisCfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAlertQueue()
	if queue == "" {
		queue = "default"
	}

	return &Dispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:      opt.Addr,
			Password:  opt.Password,
			DB:        opt.DB,
			TLSConfig: opt.TLSConfig,
		}),
		queue: queue,
		log:   log,
	}, nil
}

func (d *Dispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Dispatch enqueues one task per resolved alert. Enqueue failures are logged
// and swallowed; a dead queue must not undo a routing decision.
func (d *Dispatcher) Dispatch(ctx context.Context, organizationID, leadID uuid.UUID, ruleID string, resolved []domain.Alert) {
	if d == nil || d.client == nil {
		return
	}
	for _, alert := range resolved {
		if alert.Webhook != "" {
			task, err := NewWebhookTask(WebhookPayload{
				OrganizationID: organizationID.String(),
				LeadID:         leadID.String(),
				RuleID:         ruleID,
				URL:            alert.Webhook,
			})
			if err == nil {
				_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue))
			}
			if err != nil {
				d.log.Error("failed to enqueue routing webhook", "leadId", leadID, "url", alert.Webhook, "error", err)
			}
			continue
		}

		task, err := NewAlertTask(AlertPayload{
			OrganizationID: organizationID.String(),
			LeadID:         leadID.String(),
			RuleID:         ruleID,
			Channel:        alert.Channel,
			Message:        alert.Message,
		})
		if err == nil {
			_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue))
		}
		if err != nil {
			d.log.Error("failed to enqueue routing alert", "leadId", leadID, "channel", alert.Channel, "error", err)
		}
	}
}
