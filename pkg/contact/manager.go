// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package contact

import (
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// dialTimeout bounds the TCP connect of an outgoing contact.
const dialTimeout = 10 * time.Second

// Manager accepts incoming peer contacts, dials outgoing ones and tracks
// the active sessions. One session runs per transport connection.
type Manager struct {
	listenAddress string
	handler       Handler

	sessionsMutex sync.Mutex
	sessions      map[string]*Session

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewManager creates a Manager listening on the given TCP address. The
// handler is shared by all sessions.
func NewManager(listenAddress string, handler Handler) *Manager {
	return &Manager{
		listenAddress: listenAddress,
		handler:       handler,
		sessions:      make(map[string]*Session),
		stopSyn:       make(chan struct{}),
		stopAck:       make(chan struct{}),
	}
}

// Start begins accepting incoming contacts.
func (manager *Manager) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", manager.listenAddress)
	if err != nil {
		return err
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}

	go func(ln *net.TCPListener) {
		for {
			select {
			case <-manager.stopSyn:
				_ = ln.Close()
				manager.closeSessions()
				close(manager.stopAck)

				return

			default:
				_ = ln.SetDeadline(time.Now().Add(50 * time.Millisecond))
				if conn, err := ln.Accept(); err == nil {
					go manager.runSession(conn)
				}
			}
		}
	}(ln)

	log.WithField("address", manager.listenAddress).Info("Contact manager is listening")
	return nil
}

// Dial opens an outgoing contact to the given TCP address. An address with
// an active session is not dialed again.
func (manager *Manager) Dial(address string) error {
	manager.sessionsMutex.Lock()
	_, active := manager.sessions[address]
	manager.sessionsMutex.Unlock()

	if active {
		return fmt.Errorf("session to %s is already active", address)
	}

	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return err
	}

	go manager.runSession(conn)
	return nil
}

// runSession drives one session to completion and keeps the registry
// current.
func (manager *Manager) runSession(conn net.Conn) {
	address := conn.RemoteAddr().String()
	sess := NewSession(conn, manager.handler)

	manager.sessionsMutex.Lock()
	manager.sessions[address] = sess
	manager.sessionsMutex.Unlock()

	defer func() {
		manager.sessionsMutex.Lock()
		delete(manager.sessions, address)
		manager.sessionsMutex.Unlock()

		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"address": address,
				"error":   r,
			}).Warn("Session panicked")
		}
	}()

	if err := sess.Run(); err != nil {
		log.WithFields(log.Fields{
			"address": address,
			"peer":    sess.PeerId(),
			"error":   err,
		}).Info("Session ended with an error")
	} else {
		log.WithFields(log.Fields{
			"address": address,
			"peer":    sess.PeerId(),
		}).Debug("Session ended")
	}
}

// ActivePeers lists the peer ids of the current sessions. Sessions before
// their HELLO exchange report an empty id and are skipped.
func (manager *Manager) ActivePeers() (peers []string) {
	manager.sessionsMutex.Lock()
	defer manager.sessionsMutex.Unlock()

	for _, sess := range manager.sessions {
		if id := sess.PeerId(); id != "" {
			peers = append(peers, id)
		}
	}
	return
}

func (manager *Manager) closeSessions() {
	manager.sessionsMutex.Lock()
	sessions := make([]*Session, 0, len(manager.sessions))
	for _, sess := range manager.sessions {
		sessions = append(sessions, sess)
	}
	manager.sessionsMutex.Unlock()

	for _, sess := range sessions {
		_ = sess.Close()
	}
}

// Close shuts the Manager and all its sessions down.
func (manager *Manager) Close() {
	close(manager.stopSyn)
	<-manager.stopAck
}
