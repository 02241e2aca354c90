package gateway

import (
	"context"
	"sync"

	"github.com/pairbridge/gateway/internal/auth"
	"github.com/pairbridge/gateway/internal/logx"
	"github.com/pairbridge/gateway/internal/protocol"
)

// PairProvider supplies display metadata for an instance's pairings.
type PairProvider interface {
	InstanceName() string
	Pairs() []protocol.PairRecord
}

type instanceEntry struct {
	executor Executor
	pairs    PairProvider
}

// Runtime owns the process-wide protocol server and the live instance maps.
// Instances attach and detach without restarting the server; a call routed to
// a detached instance yields NOT_READY until it is registered again.
//
// Construct exactly one Runtime at startup and pass it by reference to
// whatever owns instance lifecycle. Tests build isolated Runtimes freely.
type Runtime struct {
	server *Server

	mu        sync.RWMutex
	instances map[int]instanceEntry

	startOnce sync.Once
	stop      context.CancelFunc
}

// NewRuntime wires a protocol server whose resolvers consult this runtime's
// instance maps.
func NewRuntime(verifier auth.Verifier, opts Options) *Runtime {
	rt := &Runtime{instances: make(map[int]instanceEntry)}
	rt.server = NewServer(verifier, rt.executorFor, rt.pairsFor, opts)
	return rt
}

// Server returns the protocol server.
func (rt *Runtime) Server() *Server { return rt.server }

// Start launches the stale-session sweeper. Subsequent calls are no-ops.
func (rt *Runtime) Start() {
	rt.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		rt.stop = cancel
		go rt.server.Run(ctx)
	})
}

// Stop halts the sweeper started by Start.
func (rt *Runtime) Stop() {
	if rt.stop != nil {
		rt.stop()
	}
}

// RegisterInstance attaches an action executor and optional pair metadata
// for an instance id, replacing any previous registration.
func (rt *Runtime) RegisterInstance(id int, exec Executor, pairs PairProvider) *Server {
	rt.mu.Lock()
	rt.instances[id] = instanceEntry{executor: exec, pairs: pairs}
	rt.mu.Unlock()
	logx.Log.Info().Int("instance", id).Msg("instance registered")
	return rt.server
}

// UnregisterInstance detaches an instance. Calls for it yield NOT_READY until
// it is re-registered.
func (rt *Runtime) UnregisterInstance(id int) {
	rt.mu.Lock()
	delete(rt.instances, id)
	rt.mu.Unlock()
	logx.Log.Info().Int("instance", id).Msg("instance unregistered")
}

// InstanceIDs returns the currently registered instance ids.
func (rt *Runtime) InstanceIDs() []int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	ids := make([]int, 0, len(rt.instances))
	for id := range rt.instances {
		ids = append(ids, id)
	}
	return ids
}

func (rt *Runtime) executorFor(id int) Executor {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	e, ok := rt.instances[id]
	if !ok {
		return nil
	}
	return e.executor
}

func (rt *Runtime) pairsFor(id int) (string, []protocol.PairRecord) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	e, ok := rt.instances[id]
	if !ok || e.pairs == nil {
		return "", nil
	}
	return e.pairs.InstanceName(), e.pairs.Pairs()
}
