// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package node

import (
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/metrics"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// deliveryRetries bounds the attempts per subscription and bundle; the
// backoff doubles from deliveryBackoff between attempts.
const (
	deliveryRetries = 5
	deliveryBackoff = 100 * time.Millisecond
)

type subscription struct {
	id       string
	filter   string
	callback func(bundle.Envelope) error
}

// Subscribe registers a delivery callback for a topic filter and returns
// the subscription id. A filter matches its topic exactly; a trailing
// "/*" matches the whole subtree, a bare "*" matches everything. The
// callback is invoked from a delivery goroutine and retried with
// exponential backoff on failure.
func (n *Node) Subscribe(topicFilter string, callback func(bundle.Envelope) error) string {
	sub := &subscription{
		id:       uuid.New().String(),
		filter:   topicFilter,
		callback: callback,
	}

	n.subsMutex.Lock()
	n.subs[sub.id] = sub
	n.subsMutex.Unlock()

	log.WithFields(log.Fields{
		"subscription": sub.id,
		"filter":       topicFilter,
	}).Info("Registered subscription")

	return sub.id
}

// Unsubscribe removes a subscription by its id.
func (n *Node) Unsubscribe(id string) {
	n.subsMutex.Lock()
	delete(n.subs, id)
	n.subsMutex.Unlock()
}

// matchTopic checks a topic against a subscription filter.
func matchTopic(filter, topic string) bool {
	if filter == "*" {
		return true
	}
	if strings.HasSuffix(filter, "/*") {
		prefix := strings.TrimSuffix(filter, "/*")
		return topic == prefix || strings.HasPrefix(topic, prefix+"/")
	}
	return filter == topic
}

// dispatch hands an admitted bundle to every matching subscription and
// settles the queue transition afterwards: delivered on any match,
// pending while forward-eligible, inbox otherwise.
func (n *Node) dispatch(e bundle.Envelope, item store.Item) {
	n.subsMutex.RLock()
	var matches []*subscription
	for _, sub := range n.subs {
		if matchTopic(sub.filter, e.Topic) {
			matches = append(matches, sub)
		}
	}
	n.subsMutex.RUnlock()

	delivered := false
	for _, sub := range matches {
		if n.deliverTo(sub, e) {
			delivered = true
			if _, err := n.store.AddDeliveredTo(item.BId, sub.id); err != nil {
				log.WithFields(log.Fields{
					"bundle":       item.Id,
					"subscription": sub.id,
					"error":        err,
				}).Warn("Failed to record delivery")
			}
		}
	}

	switch {
	case delivered:
		if err := n.store.Move(item.BId, item.CurrentQueue(), store.QueueDelivered); err != nil {
			log.WithFields(log.Fields{
				"bundle": item.Id,
				"error":  err,
			}).Warn("Failed to move delivered bundle")
			return
		}

		metrics.Deliveries.Inc()
		n.emitReceipt(&e, &item, bundle.ReceiptDelivered, "")

	case item.HopsSeen < item.HopLimit+1:
		if err := n.store.Move(item.BId, item.CurrentQueue(), store.QueuePending); err != nil {
			log.WithFields(log.Fields{
				"bundle": item.Id,
				"error":  err,
			}).Debug("Failed to move bundle to pending")
		}
	}
}

// deliverTo invokes one subscription callback with retries.
func (n *Node) deliverTo(sub *subscription, e bundle.Envelope) bool {
	backoff := deliveryBackoff

	for attempt := 1; ; attempt++ {
		err := sub.callback(e)
		if err == nil {
			return true
		}

		log.WithFields(log.Fields{
			"subscription": sub.id,
			"bundle":       e,
			"attempt":      attempt,
			"error":        err,
		}).Warn("Subscription callback failed")

		if attempt == deliveryRetries {
			return false
		}

		time.Sleep(backoff)
		backoff *= 2
	}
}
