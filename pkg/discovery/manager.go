// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"
)

// redialBase spaces repeated dials towards the same announcing node.
// Beacons repeat every few seconds; without spacing every beacon of an
// uninterested peer burns a dial attempt.
const redialBase = 30 * time.Second

// Manager publishes this node's Announcement and hands the addresses of
// discovered peers to a dial function, typically the contact manager's
// Dial.
//
// Repeated beacons of the same node are dialed at most once per redial
// delay. The delay shrinks with the peer's effectiveness score: a bridge
// that actually moves bundles gets its dropped session reestablished
// sooner than a peer that never carried anything.
type Manager struct {
	announcement Announcement
	dialFunc     func(address string) error
	boostFunc    func(nodeId string) float64

	dialMutex sync.Mutex
	lastDial  map[string]time.Time

	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

// NewManager creates and starts a Manager beaconing on the requested IP
// versions. boostFunc reports a peer's effectiveness score and may be
// nil, leaving every peer at the base redial delay.
func NewManager(
	announcement Announcement, dialFunc func(address string) error,
	boostFunc func(nodeId string) float64,
	announcementInterval time.Duration, ipv4, ipv6 bool) (*Manager, error) {

	var manager = &Manager{
		announcement: announcement,
		dialFunc:     dialFunc,
		boostFunc:    boostFunc,
		lastDial:     make(map[string]time.Time),
	}
	if ipv4 {
		manager.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		manager.stopChan6 = make(chan struct{})
	}

	log.WithFields(log.Fields{
		"interval":     announcementInterval,
		"IPv4":         ipv4,
		"IPv6":         ipv6,
		"announcement": announcement,
	}).Info("Starting discovery Manager")

	msg, err := MarshalAnnouncement(announcement)
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
		notify           func(discovered peerdiscovery.Discovered)
	}{
		{ipv4, address4, manager.stopChan4, peerdiscovery.IPv4, manager.notify},
		{ipv6, address6, manager.stopChan6, peerdiscovery.IPv6, manager.notify6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		set := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            announcementInterval,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           set.notify,
		}

		discoverErrChan := make(chan error)
		go func() {
			_, discoverErr := peerdiscovery.Discover(set)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				return nil, discoverErr
			}

		case <-time.After(time.Second):
			break
		}
	}

	return manager, nil
}

func (manager *Manager) notify6(discovered peerdiscovery.Discovered) {
	discovered.Address = fmt.Sprintf("[%s]", discovered.Address)

	manager.notify(discovered)
}

func (manager *Manager) notify(discovered peerdiscovery.Discovered) {
	announcement, err := UnmarshalAnnouncement(discovered.Payload)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"discovery": manager,
			"peer":      discovered.Address,
		}).Warn("Peer discovery failed to parse incoming package")

		return
	}

	go manager.handleDiscovery(announcement, discovered.Address)
}

func (manager *Manager) handleDiscovery(announcement Announcement, addr string) {
	log.WithFields(log.Fields{
		"discovery": manager,
		"peer":      addr,
		"message":   announcement,
	}).Debug("Peer discovery received a message")

	// Own beacons come back because of AllowSelf.
	if manager.announcement.NodeId == announcement.NodeId {
		return
	}

	if !manager.shouldDial(announcement.NodeId) {
		return
	}

	address := fmt.Sprintf("%s:%d", addr, announcement.Port)
	if err := manager.dialFunc(address); err != nil {
		log.WithFields(log.Fields{
			"discovery": manager,
			"peer":      announcement.NodeId,
			"address":   address,
			"error":     err,
		}).Debug("Dialing a discovered peer failed")
	}
}

// shouldDial throttles repeated dials towards one node and records the
// attempt when it passes.
func (manager *Manager) shouldDial(nodeId string) bool {
	manager.dialMutex.Lock()
	defer manager.dialMutex.Unlock()

	if last, ok := manager.lastDial[nodeId]; ok && time.Since(last) < manager.redialDelay(nodeId) {
		return false
	}

	manager.lastDial[nodeId] = time.Now()
	return true
}

// redialDelay divides the base delay by one plus the peer's effectiveness
// score.
func (manager *Manager) redialDelay(nodeId string) time.Duration {
	if manager.boostFunc == nil {
		return redialBase
	}

	boost := manager.boostFunc(nodeId)
	if boost < 0 {
		boost = 0
	}
	return time.Duration(float64(redialBase) / (1 + boost))
}

func (manager *Manager) String() string {
	return fmt.Sprintf("discovery.Manager(%s)", manager.announcement.NodeId)
}

// Close this Manager.
func (manager *Manager) Close() {
	for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}
