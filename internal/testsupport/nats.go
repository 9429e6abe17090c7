package testsupport

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/vigil/internal/config"
)

// NATSContainer holds the ephemeral NATS server.
type NATSContainer struct {
	Container testcontainers.Container
	Config    *config.NATSConfig
}

// Terminate removes the container.
func (c *NATSContainer) Terminate(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}

// StartNATSContainer starts nats:2.10-alpine and returns a client config
// pointing at it.
func StartNATSContainer(ctx context.Context) (*NATSContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start nats container: %w", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get nats endpoint: %w", err)
	}

	return &NATSContainer{
		Container: ctr,
		Config: &config.NATSConfig{
			URL:           endpoint,
			Name:          "vigil-test",
			QueueGroup:    "vigil-test-evaluators",
			MaxReconnects: 5,
			ReconnectWait: 100 * time.Millisecond,
			Timeout:       5 * time.Second,
			PingInterval:  20 * time.Second,
			DrainTimeout:  5 * time.Second,
		},
	}, nil
}
