package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"leadflow_backend/internal/dedupe/repository"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// Worker consumes routing alert and webhook tasks. Alerts land on the lead's
// timeline; webhooks are delivered as a JSON POST. Failed tasks are retried by
// the queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	repo   *repository.Repository
	client *http.Client
	log    *logger.Logger
}

func NewWorker(cfg config.RoutingConfig, redisCfg config.RedisConfig, repo *repository.Repository, log *logger.Logger) (*Worker, error) {
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

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		repo:   repo,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	mux.HandleFunc(TaskRoutingAlert, w.handleAlert)
	mux.HandleFunc(TaskRoutingWebhook, w.handleWebhook)

	return w, nil
}

func (w *Worker) handleAlert(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAlertPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}
	orgID, err := uuid.Parse(payload.OrganizationID)
	if err != nil {
		return err
	}

	w.log.Info("routing alert",
		"tenantId", orgID,
		"leadId", leadID,
		"ruleId", payload.RuleID,
		"channel", payload.Channel,
		"message", payload.Message,
	)

	return w.repo.CreateTimelineEvent(ctx, repository.TimelineEventParams{
		LeadID:         leadID,
		OrganizationID: orgID,
		ActorType:      "system",
		EventType:      "routing_alert",
		Title:          payload.Message,
		Metadata: map[string]any{
			"channel": payload.Channel,
			"ruleId":  payload.RuleID,
		},
	})
}

func (w *Worker) handleWebhook(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseWebhookPayload(task)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"organizationId": payload.OrganizationID,
		"leadId":         payload.LeadID,
		"ruleId":         payload.RuleID,
		"event":          "lead.routed",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", payload.URL, resp.StatusCode)
	}
	return nil
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("alert worker stopped", "error", err)
	}
}
