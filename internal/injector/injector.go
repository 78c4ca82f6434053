//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/docsync/docsync/internal/core/realtime"
	"github.com/docsync/docsync/internal/core/storage"
	"github.com/docsync/docsync/internal/server"
)

// ProvideServer assembles a memory-only server for embedding and tests.
func ProvideServer(config server.Config, realtimeConfig realtime.Config, logger *zap.Logger) *server.Server {
	wire.Build(
		storage.NewNoopStore,
		wire.Bind(new(storage.MessageStore), new(*storage.NoopStore)),
		realtime.NewManager,
		server.NewServer,
	)
	return nil
}
