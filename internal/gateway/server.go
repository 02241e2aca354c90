// Package gateway implements the session-multiplexed event/RPC protocol
// server: persistent websocket connections, per-session authentication and
// scope, typed call dispatch, and scoped event fan-out.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/coder/websocket"

	"github.com/pairbridge/gateway/internal/auth"
	"github.com/pairbridge/gateway/internal/logx"
	"github.com/pairbridge/gateway/internal/protocol"
)

// Executor runs a named action for one instance.
type Executor interface {
	Execute(ctx context.Context, action string, params json.RawMessage) (any, error)
}

// ExecutorResolver returns the executor for an instance, or nil when the
// instance is not registered.
type ExecutorResolver func(instanceID int) Executor

// PairResolver returns display metadata for an instance's pairings. An empty
// name means the instance has no registered metadata.
type PairResolver func(instanceID int) (name string, pairs []protocol.PairRecord)

// Options tune the protocol server.
type Options struct {
	ServerName        string
	ServerVersion     string
	HeartbeatInterval time.Duration // advertised to clients in hello
	SessionTimeout    time.Duration // heartbeat staleness cutoff
	SweepInterval     time.Duration // stale-session sweep cadence
	Draining          func() bool   // optional accept gate
}

func (o *Options) withDefaults() {
	if o.ServerName == "" {
		o.ServerName = "pairbridge-gateway"
	}
	if o.ServerVersion == "" {
		o.ServerVersion = "dev"
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.SessionTimeout == 0 {
		o.SessionTimeout = 60 * time.Second
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = 30 * time.Second
	}
}

// Server is the protocol dispatcher. It owns the session registry and the
// credential verifier; executors and pair metadata are resolved per instance
// through the injected resolvers.
type Server struct {
	opts        Options
	sessions    *SessionRegistry
	verifier    auth.Verifier
	executorFor ExecutorResolver
	pairsFor    PairResolver
}

func NewServer(verifier auth.Verifier, executorFor ExecutorResolver, pairsFor PairResolver, opts Options) *Server {
	opts.withDefaults()
	if executorFor == nil {
		executorFor = func(int) Executor { return nil }
	}
	if pairsFor == nil {
		pairsFor = func(int) (string, []protocol.PairRecord) { return "", nil }
	}
	return &Server{
		opts:        opts,
		sessions:    NewSessionRegistry(),
		verifier:    verifier,
		executorFor: executorFor,
		pairsFor:    pairsFor,
	}
}

// Sessions exposes the session registry.
func (s *Server) Sessions() *SessionRegistry { return s.sessions }

// WSHandler accepts gateway websocket connections.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Draining != nil && s.opts.Draining() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		conn := newWSConn(ctx, c)
		sess := s.sessions.Create(conn)
		sessionsConnected.Set(float64(s.sessions.Count()))
		defer func() {
			s.sessions.Destroy(sess.ID)
			sessionsConnected.Set(float64(s.sessions.Count()))
			conn.Close(int(websocket.StatusNormalClosure), "")
		}()

		// Hello precedes any other traffic on the connection.
		conn.Send(protocol.NewHello(sess.ID, int(s.opts.HeartbeatInterval.Milliseconds()), s.opts.ServerName, s.opts.ServerVersion))
		logx.Log.Debug().Str("session_id", sess.ID).Str("remote", r.RemoteAddr).Msg("connected")

		for {
			_, msg, err := c.Read(ctx)
			if err != nil {
				var ce websocket.CloseError
				if errors.As(err, &ce) {
					lvl := logx.Log.Info()
					if ce.Code != websocket.StatusNormalClosure {
						lvl = logx.Log.Warn()
					}
					lvl.Str("session_id", sess.ID).Str("reason", ce.Reason).Msg("disconnected")
				} else {
					logx.Log.Debug().Err(err).Str("session_id", sess.ID).Msg("disconnected")
				}
				return
			}
			s.handleFrame(ctx, sess, msg)
		}
	}
}

// handleFrame dispatches one inbound frame. Nothing escapes: every failure
// path becomes an error frame or a failed result on the open connection.
func (s *Server) handleFrame(ctx context.Context, sess *Session, msg []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logx.Log.Error().Str("session_id", sess.ID).Interface("panic", rec).Msg("frame handler panic")
			sess.Conn.Send(protocol.NewError(protocol.CodeInternalError, "internal error", false))
		}
	}()

	var f protocol.Frame
	if err := json.Unmarshal(msg, &f); err != nil || f.Op == "" {
		sess.Conn.Send(protocol.NewError(protocol.CodeInvalidFrame, "unparsable frame", false))
		return
	}
	framesReceived.WithLabelValues(f.Op).Inc()

	switch f.Op {
	case protocol.OpIdentify:
		s.handleIdentify(sess, f.Data)
	case protocol.OpPing:
		// Liveness is tracked even before authentication.
		s.sessions.UpdateHeartbeat(sess.ID)
		sess.Conn.Send(protocol.NewPong())
	case protocol.OpPong:
		// Answer to a server-initiated ping; nothing to do.
	case protocol.OpCall:
		var call protocol.CallData
		if err := json.Unmarshal(f.Data, &call); err != nil || call.ID == "" || call.Action == "" {
			sess.Conn.Send(protocol.NewError(protocol.CodeInvalidFrame, "malformed call payload", false))
			return
		}
		// Calls run concurrently; results correlate by id and may arrive out
		// of order relative to call order.
		go s.handleCall(ctx, sess, call)
	default:
		sess.Conn.Send(protocol.NewError(protocol.CodeUnknownOp, fmt.Sprintf("unknown op %q", f.Op), false))
	}
}

func (s *Server) handleIdentify(sess *Session, data json.RawMessage) {
	var id protocol.IdentifyData
	if err := json.Unmarshal(data, &id); err != nil {
		sess.Conn.Send(protocol.NewError(protocol.CodeInvalidFrame, "malformed identify payload", false))
		return
	}

	res := s.verifier.Authenticate(id.Token)
	if !res.Success {
		msg := res.Err
		if msg == "" {
			msg = "authentication failed"
		}
		logx.Log.Warn().Str("session_id", sess.ID).Msg("identify rejected")
		sess.Conn.SendClose(protocol.NewError(protocol.CodeAuthFailed, msg, true), protocol.CloseAuthFailed, "authentication failed")
		return
	}

	granted := intersect(id.Scope.Instances, res.Instances)
	if len(granted) == 0 {
		sess.Conn.SendClose(protocol.NewError(protocol.CodeForbidden, "no authorized instances in requested scope", true), protocol.CloseForbidden, "forbidden")
		return
	}

	if err := s.sessions.Authenticate(sess.ID, res.UserID, res.UserName, granted); err != nil {
		// Session swept away between read and identify; the connection is
		// already closing.
		logx.Log.Debug().Err(err).Msg("identify on destroyed session")
		return
	}

	infos := make([]protocol.InstanceInfo, 0, len(granted))
	for _, instID := range granted {
		name, pairs := s.pairsFor(instID)
		if name == "" {
			name = fmt.Sprintf("instance-%d", instID)
		}
		infos = append(infos, protocol.InstanceInfo{ID: instID, Name: name, Pairs: pairs})
	}
	sess.Conn.Send(protocol.NewReady(protocol.UserInfo{ID: res.UserID, Name: res.UserName}, infos))
	logx.Log.Info().Str("session_id", sess.ID).Str("user_id", res.UserID).Ints("instances", granted).Msg("identified")
}

func (s *Server) handleCall(ctx context.Context, sess *Session, call protocol.CallData) {
	if !sess.IsAuthenticated() {
		callsTotal.WithLabelValues("not_authenticated").Inc()
		sess.Conn.Send(protocol.NewResultError(call.ID, protocol.CodeNotAuthenticated, "identify before calling"))
		return
	}

	instanceID := resolveInstanceID(call)
	if !sess.InScope(instanceID) {
		callsTotal.WithLabelValues("forbidden").Inc()
		sess.Conn.Send(protocol.NewResultError(call.ID, protocol.CodeForbidden, fmt.Sprintf("instance %d not in session scope", instanceID)))
		return
	}

	exec := s.executorFor(instanceID)
	if exec == nil {
		callsTotal.WithLabelValues("not_ready").Inc()
		sess.Conn.Send(protocol.NewResultError(call.ID, protocol.CodeNotReady, fmt.Sprintf("instance %d has no registered executor", instanceID)))
		return
	}

	result, err := exec.Execute(ctx, call.Action, call.Params)
	if err != nil {
		callsTotal.WithLabelValues("error").Inc()
		logx.Log.Warn().Err(err).Str("session_id", sess.ID).Str("action", call.Action).Int("instance", instanceID).Msg("call failed")
		sess.Conn.Send(protocol.NewResultError(call.ID, protocol.CodeExecutionError, err.Error()))
		return
	}
	callsTotal.WithLabelValues("ok").Inc()
	sess.Conn.Send(protocol.NewResult(call.ID, result))
}

// resolveInstanceID picks the call's target instance: the explicit field,
// else params.instanceId, else the default instance 0.
func resolveInstanceID(call protocol.CallData) int {
	if call.InstanceID != nil {
		return *call.InstanceID
	}
	var p struct {
		InstanceID *int `json:"instanceId"`
	}
	if len(call.Params) > 0 && json.Unmarshal(call.Params, &p) == nil && p.InstanceID != nil {
		return *p.InstanceID
	}
	return 0
}

// PublishEvent fans event out to every authenticated session whose scope
// contains instanceID. Delivery is at-most-once: sessions whose transport is
// not open are skipped, never queued or retried.
func (s *Server) PublishEvent(instanceID int, event any) {
	frame := protocol.NewEvent(event)
	for _, sess := range s.sessions.ByScope(instanceID) {
		if !sess.Conn.IsOpen() {
			eventsDropped.Inc()
			continue
		}
		if sess.Conn.Send(frame) {
			eventsPublished.Inc()
		} else {
			eventsDropped.Inc()
		}
	}
}

// Run drives the stale-session sweep until ctx is done.
func (s *Server) Run(ctx context.Context) {
	t := time.NewTicker(s.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.sessions.CleanupStale(s.opts.SessionTimeout); n > 0 {
				sessionsConnected.Set(float64(s.sessions.Count()))
			}
		}
	}
}

func intersect(requested, authorized []int) []int {
	allow := make(map[int]bool, len(authorized))
	for _, id := range authorized {
		allow[id] = true
	}
	seen := make(map[int]bool, len(requested))
	var res []int
	for _, id := range requested {
		if allow[id] && !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	sort.Ints(res)
	return res
}
