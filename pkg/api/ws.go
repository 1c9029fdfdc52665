// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

// wsClient is one WebSocket subscriber. Deliveries arrive from the node's
// dispatch goroutines, so writes are serialized.
type wsClient struct {
	conn *websocket.Conn

	writeMutex sync.Mutex
	closeOnce  sync.Once
}

func (client *wsClient) push(e bundle.Envelope) error {
	client.writeMutex.Lock()
	defer client.writeMutex.Unlock()

	return client.conn.WriteJSON(PushedBundle{
		Id:          e.MustID().String(),
		Topic:       e.Topic,
		PayloadType: e.PayloadType,
		Payload:     e.Payload,
		Priority:    e.Priority.String(),
		Producer:    e.Producer,
		CreatedAt:   e.CreatedAt,
	})
}

func (client *wsClient) close() {
	client.closeOnce.Do(func() {
		_ = client.conn.Close()
	})
}

// handleSubscribe upgrades the request to a WebSocket and pushes every
// bundle delivered under the filter until the client disconnects. The
// filter syntax is the node's: exact topic, "prefix/*" or "*".
func (srv *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	filter := mux.Vars(r)["filter"]
	if filter == "" {
		filter = "*"
	}

	conn, connErr := srv.upgrader.Upgrade(w, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	client := &wsClient{conn: conn}
	subId := srv.node.Subscribe(filter, client.push)

	log.WithFields(log.Fields{
		"subscription": subId,
		"filter":       filter,
		"remote":       conn.RemoteAddr(),
	}).Info("WebSocket subscriber connected")

	// The read loop only notices the peer going away; clients send
	// nothing meaningful.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	srv.node.Unsubscribe(subId)
	client.close()

	log.WithFields(log.Fields{
		"subscription": subId,
		"filter":       filter,
	}).Info("WebSocket subscriber disconnected")
}
