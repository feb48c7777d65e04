// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/absmach/wsgate/pkg/agent"
	"github.com/absmach/wsgate/pkg/bus"
	gwerrors "github.com/absmach/wsgate/pkg/errors"
	"github.com/absmach/wsgate/pkg/metrics"
	"github.com/absmach/wsgate/pkg/server/tcp"
	"github.com/eapache/queue"
)

// dispatcher owns every agent. All of its state is confined to the run
// goroutine.
type dispatcher struct {
	stream   Stream
	agentCfg agent.Config
	agents   map[string]*agent.Agent
	// dead holds identities torn down by the gateway whose transport
	// disconnect has not been reported yet.
	dead    map[string]struct{}
	backlog *queue.Queue
	limit   int
	metrics *metrics.Metrics
	logger  *slog.Logger
	ctx     context.Context
}

func (d *dispatcher) run(s *Socket) {
	ctx, cancel := context.WithCancel(context.Background())
	d.ctx = ctx
	defer func() {
		cancel()
		close(s.inbound)
		close(s.done)
	}()

	d.logger.Info("dispatcher started")
	events := d.stream.Events()

	for {
		var (
			out  chan<- bus.Message
			next bus.Message
		)
		if d.backlog.Length() > 0 {
			out = s.inbound
			next = d.backlog.Peek().(bus.Message)
		}

		select {
		case cmd := <-s.control:
			if d.command(cmd) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				d.logger.Warn("transport event stream closed")
				events = nil
				continue
			}
			d.handle(ev)
		case msg := <-s.outbound:
			d.deliver(msg)
		case out <- next:
			d.backlog.Remove()
		}
	}
}

// command executes a control command and reports whether the loop must exit.
func (d *dispatcher) command(cmd command) bool {
	var r reply
	switch cmd.name {
	case CmdBind:
		r.value, r.err = d.stream.Bind(cmd.arg)
	case CmdUnbind:
		r.err = d.stream.Unbind(cmd.arg)
	case cmdStats:
		r.value = strconv.Itoa(len(d.agents))
	case CmdTerm:
		r.err = d.terminate()
		cmd.reply <- r
		return true
	}

	if r.err != nil {
		d.logger.Error("control command failed",
			slog.String("command", cmd.name),
			slog.String("endpoint", cmd.arg),
			slog.String("error", r.err.Error()))
	}
	cmd.reply <- r
	return false
}

func (d *dispatcher) terminate() error {
	d.logger.Info("dispatcher terminating", slog.Int("sessions", len(d.agents)))

	for key, a := range d.agents {
		d.remove(key, a)
	}
	if n := d.backlog.Length(); n > 0 {
		d.logger.Warn("dropping undelivered client messages", slog.Int("count", n))
	}

	return d.stream.Close()
}

func (d *dispatcher) handle(ev tcp.Event) {
	key := agent.Key(ev.Identity)
	a, ok := d.agents[key]

	var data []byte
	switch ev.Type {
	case tcp.EventDisconnected:
		delete(d.dead, key)
		if ok {
			d.remove(key, a)
		}
		return
	case tcp.EventData:
		data = ev.Data
	}

	if _, gone := d.dead[key]; gone {
		return
	}
	if !ok {
		a = agent.New(ev.Identity, ev.RemoteAddr, &d.agentCfg, d.stream, d)
		d.agents[key] = a
		d.metrics.ActiveSessions.Inc()
	}

	a.Receive(d.ctx, data)
	if a.State() == agent.StateException {
		d.dead[key] = struct{}{}
		d.remove(key, a)
	}
}

func (d *dispatcher) deliver(msg bus.Message) {
	key := msg.Identity()
	a, ok := d.agents[key]
	if !ok {
		d.logger.Debug("dropping message for unknown recipient",
			slog.String("session", key),
			slog.String("error", gwerrors.ErrUnknownRecipient.Error()))
		d.metrics.ObserveDrop(metrics.ReasonUnknownRecipient)
		return
	}

	if err := a.Deliver(msg.Parts()); errors.Is(err, gwerrors.ErrNotConnected) {
		d.logger.Debug("dropping message for session not connected", slog.String("session", key))
		d.metrics.ObserveDrop(metrics.ReasonNotConnected)
	}
	if a.State() == agent.StateException {
		d.dead[key] = struct{}{}
		d.remove(key, a)
	}
}

func (d *dispatcher) remove(key string, a *agent.Agent) {
	a.Close(d.ctx)
	delete(d.agents, key)
	d.metrics.ActiveSessions.Dec()
}

// Publish queues a reassembled client message for Recv.
func (d *dispatcher) Publish(msg bus.Message) {
	if d.limit > 0 && d.backlog.Length() >= d.limit {
		d.logger.Warn("inbound backlog full, dropping message", slog.String("session", msg.Identity()))
		d.metrics.ObserveDrop(metrics.ReasonBacklog)
		return
	}
	d.backlog.Add(msg)
}
