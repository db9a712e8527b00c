// Package alerts dispatches routing alerts and webhook calls through the task
// queue so routing decisions never block on external channels.
package alerts

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRoutingAlert = "routing.alert"

const TaskRoutingWebhook = "routing.webhook"

type AlertPayload struct {
	OrganizationID string `json:"organizationId"`
	LeadID         string `json:"leadId"`
	RuleID         string `json:"ruleId,omitempty"`
	Channel        string `json:"channel"`
	Message        string `json:"message"`
}

type WebhookPayload struct {
	OrganizationID string `json:"organizationId"`
	LeadID         string `json:"leadId"`
	RuleID         string `json:"ruleId,omitempty"`
	URL            string `json:"url"`
}

func NewAlertTask(payload AlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoutingAlert, data), nil
}

func ParseAlertPayload(task *asynq.Task) (AlertPayload, error) {
	var payload AlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AlertPayload{}, err
	}
	return payload, nil
}

func NewWebhookTask(payload WebhookPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoutingWebhook, data), nil
}

func ParseWebhookPayload(task *asynq.Task) (WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WebhookPayload{}, err
	}
	return payload, nil
}
