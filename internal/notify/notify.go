// Package notify announces pipeline outcomes on a message broker.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// Pipeline outcome statuses.
const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Notification is the message body of a pipeline event.
type Notification struct {
	PipelineType string  `json:"pipeline_type"`
	Campaign     string  `json:"campaign"`
	Status       string  `json:"status"`
	ExecutionARN *string `json:"execution_arn"`
	Error        string  `json:"error,omitempty"`
	Count        *int    `json:"count,omitempty"`
}

// Subject is the human-readable title, e.g. "Media Pipeline VIDEO: SUCCEEDED".
func (n Notification) Subject() string {
	return fmt.Sprintf("Media Pipeline %s: %s", strings.ToUpper(n.PipelineType), n.Status)
}

// RoutingKey is pipeline.<type>.<status> in lower case.
func (n Notification) RoutingKey() string {
	return fmt.Sprintf("pipeline.%s.%s", strings.ToLower(n.PipelineType), strings.ToLower(n.Status))
}

// Notifier publishes notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// NopNotifier logs and drops notifications. It is used when no broker is
// configured.
type NopNotifier struct{}

func (NopNotifier) Notify(_ context.Context, n Notification) error {
	logger.Log.Debug("Notification dropped, no broker configured", zap.String("subject", n.Subject()))
	return nil
}

func (NopNotifier) Close() error { return nil }

// New returns a RabbitMQ notifier when the broker is enabled and a
// NopNotifier otherwise.
func New(cfg config.RabbitMQConfig, invoker *retry.Invoker) (Notifier, error) {
	if !cfg.Enabled {
		return NopNotifier{}, nil
	}
	return NewRabbitNotifier(cfg, invoker)
}
