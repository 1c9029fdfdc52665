// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"

	"github.com/driftmesh/driftmesh-go/pkg/api"
	"github.com/driftmesh/driftmesh-go/pkg/contact"
	"github.com/driftmesh/driftmesh-go/pkg/discovery"
	"github.com/driftmesh/driftmesh-go/pkg/node"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core      coreConf
	Logging   logConf
	API       apiConf `toml:"api"`
	Contact   contactConf
	Peer      []peerConf
	Discovery discoveryConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	NodeId      string `toml:"node-id"`
	DataDir     string `toml:"data-dir"`
	KeyFile     string `toml:"key-file"`
	Role        string
	CacheBudget uint64 `toml:"cache-budget"`
	MaxPayload  uint64 `toml:"max-payload"`
	Profiling   bool
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// apiConf describes the HTTP surface.
type apiConf struct {
	Listen string
}

// contactConf describes the peer contact listener.
type contactConf struct {
	Listen string
}

// peerConf describes one statically configured peer.
type peerConf struct {
	Address string
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4     bool
	IPv6     bool
	Interval uint
}

// daemon bundles everything driftd runs, for an ordered shutdown.
type daemon struct {
	node      *node.Node
	contacts  *contact.Manager
	discovery *discovery.Manager
	httpSrv   *http.Server
	group     *errgroup.Group

	profiling bool
}

func configureLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

func parseListenPort(endpoint string) (port int, err error) {
	var portStr string
	_, portStr, err = net.SplitHostPort(endpoint)
	if err != nil {
		return
	}
	port, err = strconv.Atoi(portStr)
	return
}

// parseConfiguration creates the running daemon from a TOML file.
func parseConfiguration(filename string) (d *daemon, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	configureLogging(conf.Logging)

	if conf.Core.DataDir == "" {
		err = fmt.Errorf("core.data-dir is empty")
		return
	}
	if conf.Contact.Listen == "" {
		err = fmt.Errorf("contact.listen is empty")
		return
	}

	var role node.Role
	if conf.Core.Role != "" {
		if role, err = node.ParseRole(conf.Core.Role); err != nil {
			return
		}
	}

	n, nodeErr := node.New(node.Config{
		NodeId:      conf.Core.NodeId,
		KeyFile:     conf.Core.KeyFile,
		DataDir:     conf.Core.DataDir,
		Role:        role,
		CacheBudget: conf.Core.CacheBudget,
		MaxPayload:  conf.Core.MaxPayload,
	})
	if nodeErr != nil {
		err = nodeErr
		return
	}

	d = &daemon{
		node:      n,
		contacts:  contact.NewManager(conf.Contact.Listen, n),
		group:     new(errgroup.Group),
		profiling: conf.Core.Profiling,
	}

	if err = d.contacts.Start(); err != nil {
		_ = n.Close()
		return
	}

	// Static peers
	for _, peer := range conf.Peer {
		if dialErr := d.contacts.Dial(peer.Address); dialErr != nil {
			log.WithFields(log.Fields{
				"peer":  peer.Address,
				"error": dialErr,
			}).Warn("Failed to establish a connection to a peer")
		}
	}

	// Discovery
	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		if conf.Discovery.Interval == 0 {
			conf.Discovery.Interval = 10
		}

		contactPort, portErr := parseListenPort(conf.Contact.Listen)
		if portErr != nil {
			err = portErr
			return
		}

		d.discovery, err = discovery.NewManager(
			discovery.Announcement{
				NodeId:    n.Id(),
				PublicKey: n.PublicKey(),
				Port:      uint(contactPort),
			},
			d.contacts.Dial,
			n.Peers().Boost,
			time.Duration(conf.Discovery.Interval)*time.Second,
			conf.Discovery.IPv4, conf.Discovery.IPv6)
		if err != nil {
			return
		}
	}

	// HTTP surface
	if conf.API.Listen != "" {
		d.httpSrv = &http.Server{
			Addr:    conf.API.Listen,
			Handler: api.NewServer(n),
		}

		d.group.Go(func() error {
			if serveErr := d.httpSrv.ListenAndServe(); serveErr != http.ErrServerClosed {
				return serveErr
			}
			return nil
		})

		log.WithField("address", conf.API.Listen).Info("API is listening")
	}

	return
}

// Close shuts the daemon's components down in reverse start order.
func (d *daemon) Close() {
	if d.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := d.httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("HTTP shutdown errored")
		}
	}
	if err := d.group.Wait(); err != nil {
		log.WithError(err).Warn("HTTP serving errored")
	}

	if d.discovery != nil {
		d.discovery.Close()
	}

	d.contacts.Close()

	if err := d.node.Close(); err != nil {
		log.WithError(err).Warn("Node shutdown errored")
	}
}
