package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"clawpulse/internal/dashboard"
	"clawpulse/internal/domain"
)

const (
	webhookStatus     = "status"
	webhookMessage    = "message"
	webhookTaskStatus = "task_status"
	webhookUsage      = "usage"
)

// webhookEvent is the envelope external agents post to report activity. Which
// fields are required depends on Type.
type webhookEvent struct {
	Type         string  `json:"type" validate:"required,oneof=status message task_status usage"`
	AgentID      string  `json:"agent_id" validate:"required_unless=Type task_status,max=128"`
	Status       string  `json:"status" validate:"required_if=Type status,max=32"`
	Detail       string  `json:"detail" validate:"max=1000"`
	Channel      string  `json:"channel" validate:"required_if=Type message,max=128"`
	Body         string  `json:"body" validate:"max=8000"`
	TaskID       string  `json:"task_id" validate:"required_if=Type task_status,max=128"`
	TaskStatus   string  `json:"task_status" validate:"required_if=Type task_status,max=32"`
	LastError    string  `json:"last_error" validate:"max=2000"`
	Model        string  `json:"model" validate:"required_if=Type usage,max=128"`
	InputTokens  int64   `json:"input_tokens" validate:"gte=0"`
	OutputTokens int64   `json:"output_tokens" validate:"gte=0"`
	CostUSD      float64 `json:"cost_usd" validate:"gte=0"`
}

var webhookValidate = validator.New()

func (a *app) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var ev webhookEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	if err := webhookValidate.Struct(ev); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return
	}

	var (
		result any
		err    error
	)
	ctx := r.Context()
	switch ev.Type {
	case webhookStatus:
		result, err = a.svc.RecordStatus(ctx, ev.AgentID, ev.Status, ev.Detail)
	case webhookMessage:
		result, err = a.svc.RecordMessage(ctx, domain.Message{AgentID: ev.AgentID, Channel: ev.Channel, Body: ev.Body})
	case webhookTaskStatus:
		result, err = a.svc.UpdateTaskStatus(ctx, ev.TaskID, domain.TaskStatus(ev.TaskStatus), ev.LastError)
	case webhookUsage:
		result, err = a.svc.RecordUsage(ctx, domain.TokenUsage{
			AgentID:      ev.AgentID,
			Model:        ev.Model,
			InputTokens:  ev.InputTokens,
			OutputTokens: ev.OutputTokens,
			CostUSD:      ev.CostUSD,
		})
	default:
		err = fmt.Errorf("%w: unsupported event type %s", dashboard.ErrInvalidInput, ev.Type)
	}
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": ev.Type,
		"result":   result,
	})
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid webhook event: %s", strings.Join(parts, "; "))
}
