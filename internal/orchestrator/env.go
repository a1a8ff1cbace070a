package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/taskwright/internal/nats"
	"github.com/mark3labs/taskwright/internal/store"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
)

// Env bundles the embedded messaging runtime and the event store built on
// top of it. Commands that only inspect or mutate persisted state (status,
// unblock) open an Env without the full orchestrator.
type Env struct {
	ns    *natsserver.Server
	nc    *natsgo.Conn
	Store *store.Store
}

// OpenEnv starts the embedded NATS server under dataDir and wires up the
// JetStream-backed store.
func OpenEnv(ctx context.Context, dataDir string) (*Env, error) {
	natsDir := filepath.Join(dataDir, "nats")
	if err := os.MkdirAll(natsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create NATS data directory: %w", err)
	}

	ns, err := nats.StartEmbedded(natsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to start NATS server: %w", err)
	}

	nc, err := nats.ConnectInProcess(ns)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nats.CreateJetStream(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := nats.SetupStream(ctx, js)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}

	return &Env{ns: ns, nc: nc, Store: store.NewStore(js, stream)}, nil
}

// Close drains the connection and shuts the embedded server down.
func (e *Env) Close() error {
	return nats.Shutdown(e.nc, e.ns)
}
