// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"io/ioutil"
	"math"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/driftmesh/driftmesh-go/pkg/api"
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange topic directory",
	Short: "Exchange bundles through a directory: new files are submitted, deliveries are written back",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		startExchange(args[0], args[1])
	},
}

// exchange bundles between the filesystem and a driftd.
type exchange struct {
	topic      string
	directory  string
	knownFiles sync.Map

	websocketConn *websocket.Conn
	watcher       *fsnotify.Watcher

	closeChan      chan os.Signal
	bundleReadChan chan api.PushedBundle
}

func startExchange(topic, directory string) {
	ex := &exchange{
		topic:          topic,
		directory:      directory,
		closeChan:      make(chan os.Signal),
		bundleReadChan: make(chan api.PushedBundle),
	}

	signal.Notify(ex.closeChan, os.Interrupt)

	wsUrl := strings.Replace(apiAddress, "http", "ws", 1) + "/subscribe/" + topic + "/*"
	conn, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err != nil {
		log.WithError(err).Fatal("Connecting the subscription errored")
	}
	ex.websocketConn = conn

	if ex.watcher, err = fsnotify.NewWatcher(); err != nil {
		log.WithError(err).Fatal("Starting file watcher errored")
	}
	if err = ex.watcher.Add(directory); err != nil {
		log.WithError(err).Fatal("Adding directory to file watcher errored")
	}

	go ex.handleBundleRead()
	ex.handler()
}

// cleanFilepath creates a relative path from the initial path to a new file's path.
func (ex *exchange) cleanFilepath(f string) string {
	if rel, err := filepath.Rel(ex.directory, f); err != nil {
		log.WithField("path", f).WithError(err).Fatal("Failed to clean file path")
		return ""
	} else {
		return rel
	}
}

func (ex *exchange) handler() {
	defer func() {
		_ = ex.watcher.Close()
		_ = ex.websocketConn.Close()
	}()

	for {
		select {
		case <-ex.closeChan:
			log.Info("Received interrupt signal")
			return

		case e, ok := <-ex.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if _, ok := ex.knownFiles.Load(ex.cleanFilepath(e.Name)); ok {
				log.WithField("file", e.Name).Debug("Skipping file; already known")
				continue
			}

			if e.Op&fsnotify.Create == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			ex.submitNewFile(e)

		case err, ok := <-ex.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Error("fsnotify errored")
			return

		case pushed, ok := <-ex.bundleReadChan:
			if !ok {
				log.Error("Bundle reader channel was closed")
				return
			}

			filePath := path.Join(ex.directory, pushed.Id)
			logger := log.WithFields(log.Fields{
				"bundle": pushed.Id,
				"file":   filePath,
			})

			ex.knownFiles.Store(ex.cleanFilepath(filePath), struct{}{})

			if err := ioutil.WriteFile(filePath, pushed.Payload, 0600); err != nil {
				logger.WithError(err).Error("Writing file errored")
				return
			}

			logger.Info("Saved received bundle")
		}
	}
}

// submitNewFile posts a dropped file as a bundle, retrying while the
// writer may still be flushing it.
func (ex *exchange) submitNewFile(e fsnotify.Event) {
	topic := ex.topic + "/" + ex.cleanFilepath(e.Name)

	for i := 0; i < 5; i++ {
		var resp api.SubmitResponse

		if data, err := ioutil.ReadFile(e.Name); err != nil {
			log.WithError(err).WithField("file", e.Name).Warn("Reading file errored, retrying..")
		} else if err := postJSON("/submit", api.SubmitRequest{
			Topic:       topic,
			Payload:     data,
			PayloadType: "file",
			TTL:         "24h",
		}, &resp); err != nil {
			log.WithError(err).WithField("file", e.Name).Error("Submitting errored")
			return
		} else if resp.Error != "" {
			log.WithFields(log.Fields{
				"file":  e.Name,
				"error": resp.Error,
			}).Error("Submission rejected")
			return
		} else {
			ex.knownFiles.Store(ex.cleanFilepath(e.Name), struct{}{})

			log.WithFields(log.Fields{
				"file":   e.Name,
				"bundle": resp.Id,
			}).Info("Submitted bundle")
			return
		}

		time.Sleep(time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond)
	}

	log.WithField("file", e.Name).Error("Failed to process file, giving up.")
}

func (ex *exchange) handleBundleRead() {
	for {
		var pushed api.PushedBundle
		if err := ex.websocketConn.ReadJSON(&pushed); err != nil {
			log.WithError(err).Error("Reading bundle errored")

			close(ex.bundleReadChan)
			return
		}

		ex.bundleReadChan <- pushed
	}
}
