//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// RabbitMQContainer is a broker for the AMQP event transport.
type RabbitMQContainer struct {
	Container testcontainers.Container
	URL       string
}

func NewRabbitMQContainer(t *testing.T) *RabbitMQContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcrabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine")
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %v", err)
	}
	url, err := container.AmqpURL(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get amqp url: %v", err)
	}
	return &RabbitMQContainer{Container: container, URL: url}
}
