// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/keyring"
	"github.com/driftmesh/driftmesh-go/pkg/peer"
	"github.com/driftmesh/driftmesh-go/pkg/routing"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// Config shapes a Node. Zero values fall back to the role's presets.
type Config struct {
	// NodeId identifies this node towards peers. Defaults to a prefix of
	// the public key.
	NodeId string

	// KeyFile is the signing key's location, created if absent.
	KeyFile string

	// DataDir holds the store, keyring and peer table.
	DataDir string

	Role Role

	// CacheBudget caps the live-queue payload bytes.
	CacheBudget uint64

	// MaxPayload caps a single bundle's payload.
	MaxPayload uint64

	SweepInterval time.Duration
	EvictInterval time.Duration

	// GraceWindow keeps expired ids answerable for duplicate checks.
	GraceWindow time.Duration

	// DiagnosticWindow keeps quarantined bundles inspectable.
	DiagnosticWindow time.Duration
}

func (cfg *Config) applyDefaults() {
	if cfg.Role == "" {
		cfg.Role = RoleProducer
	}
	if cfg.CacheBudget == 0 {
		cfg.CacheBudget = cfg.Role.CacheBudget()
	}
	if cfg.MaxPayload == 0 {
		cfg.MaxPayload = 16 << 20
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}
	if cfg.EvictInterval == 0 {
		cfg.EvictInterval = 5 * time.Minute
	}
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = cfg.Role.GraceWindow()
	}
	if cfg.DiagnosticWindow == 0 {
		cfg.DiagnosticWindow = 24 * time.Hour
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(cfg.DataDir, "signing.key")
	}
}

// Node is one substrate instance.
type Node struct {
	config Config

	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	store     *store.Store
	keyring   *keyring.Keyring
	peers     *peer.Table
	forwarder *routing.Forwarder
	weights   routing.Weights
	cron      *Cron

	subsMutex sync.RWMutex
	subs      map[string]*subscription

	// evictMutex serializes budget enforcement.
	evictMutex sync.Mutex
}

// New creates a Node from its Config, loading or generating the signing
// key and opening the persistent state under DataDir.
func New(cfg Config) (n *Node, err error) {
	cfg.applyDefaults()

	if err = os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return
	}

	priv, keyErr := bundle.LoadOrCreateKey(cfg.KeyFile)
	if keyErr != nil {
		err = keyErr
		return
	}
	pub := priv.Public().(ed25519.PublicKey)

	if cfg.NodeId == "" {
		cfg.NodeId = hex.EncodeToString(pub[:8])
	}

	s, storeErr := store.NewStore(filepath.Join(cfg.DataDir, "store"))
	if storeErr != nil {
		err = storeErr
		return
	}

	kr, krErr := keyring.NewKeyring(filepath.Join(cfg.DataDir, "keyring"))
	if krErr != nil {
		_ = s.Close()
		err = krErr
		return
	}

	peers, peerErr := peer.NewTable(filepath.Join(cfg.DataDir, "peers"))
	if peerErr != nil {
		_ = s.Close()
		_ = kr.Close()
		err = peerErr
		return
	}

	n = &Node{
		config: cfg,

		priv: priv,
		pub:  pub,

		store:     s,
		keyring:   kr,
		peers:     peers,
		forwarder: routing.NewForwarder(s, kr, peers),
		weights:   routing.DefaultWeights(),
		cron:      NewCron(),

		subs: make(map[string]*subscription),
	}
	n.weights.MaxPayload = cfg.MaxPayload

	if err = n.cron.Register("sweeper", n.sweep, cfg.SweepInterval); err != nil {
		return
	}
	if err = n.cron.Register("evictor", n.enforceBudget, cfg.EvictInterval); err != nil {
		return
	}
	if err = n.cron.Register("peer-decay", n.decayPeers, time.Hour); err != nil {
		return
	}

	log.WithFields(log.Fields{
		"node":   cfg.NodeId,
		"role":   cfg.Role,
		"budget": cfg.CacheBudget,
	}).Info("Node is up")

	return
}

// Id of this node.
func (n *Node) Id() string {
	return n.config.NodeId
}

// Role this node is configured as.
func (n *Node) Role() Role {
	return n.config.Role
}

// PublicKey of this node's signing key.
func (n *Node) PublicKey() ed25519.PublicKey {
	return n.pub
}

// Store grants read access to the queue store, for the API surface.
func (n *Node) Store() *store.Store {
	return n.store
}

// Keyring grants access to the trust filter, for the API surface.
func (n *Node) Keyring() *keyring.Keyring {
	return n.keyring
}

// Peers grants access to the peer table.
func (n *Node) Peers() *peer.Table {
	return n.peers
}

// AvailableBytes left under the cache budget.
func (n *Node) AvailableBytes() uint64 {
	if live := n.store.LiveBytes(); live < n.config.CacheBudget {
		return n.config.CacheBudget - live
	}
	return 0
}

func (n *Node) decayPeers() {
	n.peers.Decay(0.98)
}

// Close shuts the Node down: background jobs drain their current unit of
// work, then the persistent state closes.
func (n *Node) Close() error {
	n.cron.Stop()

	var errs []string
	for _, closer := range []func() error{n.store.Close, n.keyring.Close, n.peers.Close} {
		if err := closer(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing node: %v", errs)
	}
	return nil
}
