// Package container wires the application's dependencies.
package container

import (
	"claude-relay/internal/app"
	"claude-relay/internal/config"
	"claude-relay/internal/handler"
	"claude-relay/internal/httpclient"
	"claude-relay/internal/relay"
	"claude-relay/internal/router"
	"claude-relay/internal/types"

	"go.uber.org/dig"
)

// BuildContainer creates the dependency injection container and registers
// all constructors.
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	providers := []any{
		func() (types.ConfigManager, error) {
			return config.NewManager()
		},
		httpclient.NewHTTPClientManager,
		relay.NewServer,
		handler.NewServer,
		router.NewRouter,
		app.NewApp,
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}
