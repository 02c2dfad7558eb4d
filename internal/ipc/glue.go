package ipc

import (
	"fmt"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

type accessList struct {
	uids map[uint32]struct{}
	gids map[uint32]struct{}
}

func (l *accessList) allowed(uid, gid uint32) bool {
	if _, ok := l.uids[uid]; ok {
		return true
	}
	_, ok := l.gids[gid]
	return ok
}

// SetAccess replaces the uid and gid allow-list. Safe from any goroutine.
func (c *Core) SetAccess(uids, gids []uint32) {
	l := &accessList{
		uids: make(map[uint32]struct{}, len(uids)),
		gids: make(map[uint32]struct{}, len(gids)),
	}
	for _, u := range uids {
		l.uids[u] = struct{}{}
	}
	for _, g := range gids {
		l.gids[g] = struct{}{}
	}
	c.access.Store(l)
}

// Accept decides whether a client may connect to svc. It returns the deny
// reason, or nil. Safe from any goroutine.
func (c *Core) Accept(svc domain.ServiceID, creds Credentials) error {
	if _, ok := c.registry.Lookup(svc); !ok {
		return domain.ErrServiceUnknown
	}
	if c.registry.Unloading(svc) {
		return domain.ErrServiceUnloading
	}
	if c.lowFDs.Load() {
		return domain.ErrDescriptorsExhausted
	}
	if creds.UID == 0 || creds.GID == 0 {
		return nil
	}
	if c.access.Load().allowed(creds.UID, creds.GID) {
		return nil
	}

	c.logger.Error("Denied connection attempt", "uid", creds.UID, "gid", creds.GID, "pid", creds.PID)
	return domain.ErrAccessDenied.WithDetails(fmt.Sprintf("uid %d gid %d", creds.UID, creds.GID))
}

// Created sets up the state of a newly accepted channel.
func (c *Core) Created(svc domain.ServiceID, ch Channel) (service.ConnID, error) {
	desc, ok := c.registry.Lookup(svc)
	if !ok {
		return 0, domain.ErrServiceUnknown
	}

	conn := newConnection(svc, desc, ch)
	conn.id = c.conns.insert(conn)
	creds := ch.Credentials()
	conn.name = connectionName(c.procName, creds.PID)

	if desc.LibInit != nil {
		if err := desc.LibInit(c.api, conn.id); err != nil {
			c.conns.remove(conn.id)
			c.logger.Warn("service refused connection", "service", desc.Name, "conn", conn.name, "error", err)
			return 0, err
		}
	}

	if c.stats != nil {
		if err := c.stats.ConnectionCreated(conn.name, ConnectionInfo{Service: svc, PID: creds.PID}); err != nil {
			c.logger.Warn("stats object create failed", "conn", conn.name, "error", err)
		}
	}
	c.metricConnections(1)

	c.logger.Debug("connection created", "service", desc.Name, "conn", conn.name)
	return conn.id, nil
}

// Message handles one request read from the channel of id.
func (c *Core) Message(id service.ConnID, msg []byte) error {
	conn, ok := c.conns.get(id)
	if !ok {
		return domain.ErrConnectionGone
	}
	c.handleRequest(conn, msg)
	return nil
}

// Closed runs the service exit hook. ErrRetryClose asks the adapter to
// call Closed again later.
func (c *Core) Closed(id service.ConnID) error {
	conn, ok := c.conns.get(id)
	if !ok || conn.exited {
		return nil
	}

	if conn.desc.LibExit != nil {
		if err := conn.desc.LibExit(c.api, id); err != nil {
			c.logger.Debug("service exit deferred", "conn", conn.name, "error", err)
			return ErrRetryClose
		}
	}
	conn.exited = true

	if c.stats != nil {
		if err := c.stats.ConnectionClosed(conn.name); err != nil {
			c.logger.Warn("stats object delete failed", "conn", conn.name, "error", err)
		}
	}
	c.metricConnections(-1)
	c.metricClosed()
	return nil
}

// Destroyed frees everything held for id. The handle is invalid afterwards.
func (c *Core) Destroyed(id service.ConnID) {
	conn, ok := c.conns.get(id)
	if !ok {
		return
	}
	if !conn.exited {
		// The adapter skipped Closed; the service still gets its exit hook.
		if conn.desc.LibExit != nil {
			_ = conn.desc.LibExit(c.api, id)
		}
		conn.exited = true
		c.metricConnections(-1)
		c.metricClosed()
	}
	c.conns.remove(id)
	c.releaseQueue(conn)
	conn.private = nil
	c.logger.Debug("connection destroyed", "conn", conn.name)
}

// Connections returns the number of live connections.
func (c *Core) Connections() int {
	return c.conns.count()
}
