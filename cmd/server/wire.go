//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/faultline/faultline/internal/config"
	internalwire "github.com/faultline/faultline/internal/wire"
)

// InitializeApplication creates a fully-wired Application instance.
func InitializeApplication(cfg *config.Config) (*internalwire.Application, error) {
	wire.Build(internalwire.ProviderSet)
	return nil, nil
}
