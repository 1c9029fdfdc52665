// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"time"

	"github.com/driftmesh/driftmesh-go/pkg/node"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// SubmitRequest describes a JSON to be POSTed to /submit. Payload is
// base64 within the JSON. TTL is a Go duration string; exactly one of
// TTL and ExpiresAt must be set. Receipts lists the requested receipt
// kinds by name, an absent list falls back to the node role's preset and
// an empty list requests none.
type SubmitRequest struct {
	Topic       string     `json:"topic"`
	Payload     []byte     `json:"payload"`
	PayloadType string     `json:"payload_type,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Audience    string     `json:"audience,omitempty"`
	TTL         string     `json:"ttl,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	HopLimit    uint32     `json:"hop_limit,omitempty"`
	Receipts    *[]string  `json:"receipts,omitempty"`
}

// SubmitResponse describes a JSON response for /submit.
type SubmitResponse struct {
	Error string `json:"error,omitempty"`
	Id    string `json:"id,omitempty"`
}

// BundleResponse describes a JSON response for /bundle/{id}.
type BundleResponse struct {
	Error string `json:"error,omitempty"`

	Id          string    `json:"id,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	PayloadType string    `json:"payload_type,omitempty"`
	Payload     []byte    `json:"payload,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Audience    string    `json:"audience,omitempty"`
	Producer    []byte    `json:"producer,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	HopLimit    uint32    `json:"hop_limit,omitempty"`

	Queue     string   `json:"queue,omitempty"`
	HopsSeen  uint32   `json:"hops_seen"`
	PeersSeen []string `json:"peers_seen,omitempty"`
}

// StatusResponse describes a JSON response for /status/{id}.
type StatusResponse struct {
	Error  string              `json:"error,omitempty"`
	Id     string              `json:"id,omitempty"`
	Events []node.ReceiptEvent `json:"events"`
}

// QueueEntry is one row of a /queue/{name} listing.
type QueueEntry struct {
	Id          string    `json:"id"`
	Topic       string    `json:"topic"`
	Priority    string    `json:"priority"`
	Queue       string    `json:"queue"`
	PayloadSize uint64    `json:"payload_size"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	Expires     time.Time `json:"expires"`
	HopsSeen    uint32    `json:"hops_seen"`
	PeersSeen   []string  `json:"peers_seen,omitempty"`
	Quarantine  string    `json:"quarantine_reason,omitempty"`
}

// QueueResponse describes a JSON response for /queue/{name}.
type QueueResponse struct {
	Error   string       `json:"error,omitempty"`
	Entries []QueueEntry `json:"entries"`
}

// KeyringAddRequest describes a JSON to be POSTed to /keyring/{ring}.
type KeyringAddRequest struct {
	PublicKey []byte `json:"public_key"`
	Note      string `json:"note,omitempty"`
}

// KeyringEntry is one row of a /keyring/{ring} listing.
type KeyringEntry struct {
	PublicKey []byte    `json:"public_key"`
	AddedAt   time.Time `json:"added_at"`
	Note      string    `json:"note,omitempty"`
}

// KeyringResponse describes a JSON response for the keyring endpoints.
type KeyringResponse struct {
	Error   string         `json:"error,omitempty"`
	Entries []KeyringEntry `json:"entries,omitempty"`
}

// InfoResponse describes a JSON response for /info.
type InfoResponse struct {
	NodeId         string `json:"node_id"`
	PublicKey      []byte `json:"public_key"`
	Role           string `json:"role"`
	LiveBytes      uint64 `json:"live_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
}

// PushedBundle is the WebSocket frame for a delivered bundle.
type PushedBundle struct {
	Id          string    `json:"id"`
	Topic       string    `json:"topic"`
	PayloadType string    `json:"payload_type,omitempty"`
	Payload     []byte    `json:"payload"`
	Priority    string    `json:"priority"`
	Producer    []byte    `json:"producer"`
	CreatedAt   time.Time `json:"created_at"`
}

func queueEntry(item store.Item) QueueEntry {
	return QueueEntry{
		Id:          item.Id,
		Topic:       item.Topic,
		Priority:    priorityName(item.Priority),
		Queue:       item.Queue,
		PayloadSize: item.PayloadSize,
		EnqueuedAt:  item.EnqueuedAt,
		Expires:     item.Expires,
		HopsSeen:    item.HopsSeen,
		PeersSeen:   item.PeersSeen,
		Quarantine:  item.QuarantineReason,
	}
}
