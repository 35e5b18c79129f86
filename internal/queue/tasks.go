package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/grayblur/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeGrayBlur = "image:grayblur"

type GrayBlurPayload struct {
	JobID       string                `json:"job_id"`
	SourceType  string                `json:"source_type"`
	WebhookURL  string                `json:"webhook_url,omitempty"`
	ObjectKey   string                `json:"object_key"`
	Pipeline    []domain.PipelineStep `json:"pipeline"`
	RequestedAt time.Time             `json:"requested_at"`
}

func NewGrayBlurTask(payload GrayBlurPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal grayblur payload: %w", err)
	}
	return asynq.NewTask(TypeGrayBlur, body), nil
}

func ParseGrayBlurPayload(task *asynq.Task) (GrayBlurPayload, error) {
	var payload GrayBlurPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GrayBlurPayload{}, fmt.Errorf("unmarshal grayblur payload: %w", err)
	}
	return payload, nil
}
