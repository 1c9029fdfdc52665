// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	lru "github.com/hashicorp/golang-lru"
	"github.com/timshannon/badgerhold"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

const (
	dirBadger string = "db"
	dirEnv    string = "env"

	// purgedCacheSize bounds the purged-id grace cache.
	purgedCacheSize = 4096
)

var (
	// ErrDuplicate is returned when an enqueued bundle id is already known,
	// either stored or within the duplicate grace of a purged id.
	ErrDuplicate = errors.New("bundle id is already known")

	// ErrQueueConflict is returned by Move when the bundle is not in the
	// expected source queue, e.g. because a concurrent mover won.
	ErrQueueConflict = errors.New("bundle is not in the expected queue")

	// ErrNotFound is returned for unknown bundle ids.
	ErrNotFound = errors.New("bundle id is unknown")
)

// Store implements the persistent six-queue storage for bundles together
// with their metadata.
type Store struct {
	bh *badgerhold.Store

	badgerDir string
	envDir    string

	// mutex serializes queue moves and the live-byte accounting. Every
	// persisted transition is a single badgerhold update.
	mutex     sync.Mutex
	liveBytes uint64

	// purged maps a purged bundle id to the instant until which its
	// re-arrival still counts as a duplicate.
	purged *lru.Cache
}

// NewStore creates a new Store or opens an existing Store from the given
// directory.
func NewStore(dir string) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)
	envDir := path.Join(dir, dirEnv)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}
	if dirErr := os.MkdirAll(envDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	bh, bhErr := badgerhold.Open(opts)
	if bhErr != nil {
		err = bhErr
		return
	}

	purged, lruErr := lru.New(purgedCacheSize)
	if lruErr != nil {
		err = lruErr
		return
	}

	s = &Store{
		bh: bh,

		badgerDir: badgerDir,
		envDir:    envDir,

		purged: purged,
	}

	err = s.recountLiveBytes()
	return
}

// recountLiveBytes rebuilds the live-byte counter from the metadata rows,
// called once at startup.
func (s *Store) recountLiveBytes() error {
	var items []Item
	if err := s.bh.Find(&items, nil); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.liveBytes = 0
	for _, item := range items {
		if item.CurrentQueue().IsLive() {
			s.liveBytes += item.PayloadSize
		}
	}
	return nil
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// LiveBytes is the sum of payload bytes across the four live queues.
func (s *Store) LiveBytes() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.liveBytes
}

// Enqueue a locally produced bundle into the given queue. The metadata
// row is initialized atomically with the insertion; a known or
// grace-suppressed id yields ErrDuplicate.
func (s *Store) Enqueue(e *bundle.Envelope, queue Queue) (Item, error) {
	return s.EnqueueArrival(e, queue, 0, nil)
}

// EnqueueArrival enqueues a bundle received from a peer, seeding hopsSeen
// with the hop distance it traveled and peersSeen with the path it took.
func (s *Store) EnqueueArrival(e *bundle.Envelope, queue Queue, hops uint32, peersSeen []string) (item Item, err error) {
	if !queue.IsValid() {
		err = fmt.Errorf("unknown queue %q", queue)
		return
	}

	bid, idErr := e.ID()
	if idErr != nil {
		err = idErr
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isDuplicateLocked(bid) {
		err = ErrDuplicate
		return
	}

	item = newItem(e, bid, queue, s.envDir)
	item.HopsSeen = hops
	for _, peer := range peersSeen {
		if !item.HasPeerSeen(peer) {
			item.PeersSeen = append(item.PeersSeen, peer)
		}
	}

	if err = item.storeEnvelope(e); err != nil {
		return
	}

	if err = s.bh.Insert(item.Id, item); err != nil {
		_ = item.deleteEnvelope()
		return
	}

	if queue.IsLive() {
		s.liveBytes += item.PayloadSize
	}

	log.WithFields(log.Fields{
		"bundle": item.Id,
		"queue":  queue,
	}).Debug("Store enqueued bundle")

	return
}

// Quarantine a bundle together with the failed admission check's reason.
func (s *Store) Quarantine(e *bundle.Envelope, reason string) (Item, error) {
	item, err := s.Enqueue(e, QueueQuarantine)
	if err != nil {
		return item, err
	}

	item.QuarantineReason = reason
	err = s.bh.Update(item.Id, item)
	return item, err
}

// isDuplicateLocked answers the admission duplicate check: a stored row in
// any queue, or a purged id still within its grace.
func (s *Store) isDuplicateLocked(bid bundle.BundleID) bool {
	var item Item
	if err := s.bh.Get(bid.String(), &item); err == nil {
		return true
	}

	if until, ok := s.purged.Get(bid.String()); ok {
		if time.Now().Before(until.(time.Time)) {
			return true
		}
		s.purged.Remove(bid.String())
	}
	return false
}

// KnowsBundle checks if the given id is a duplicate, compare Enqueue.
func (s *Store) KnowsBundle(bid bundle.BundleID) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.isDuplicateLocked(bid)
}

// QueryId fetches the Item for the requested bundle id.
func (s *Store) QueryId(bid bundle.BundleID) (item Item, err error) {
	if err = s.bh.Get(bid.String(), &item); err == badgerhold.ErrNotFound {
		err = ErrNotFound
	}
	return
}

// Move a bundle from one queue to another. The source queue acts as the
// compare value: if a concurrent mover already moved the bundle away,
// ErrQueueConflict is returned and nothing changes.
func (s *Store) Move(bid bundle.BundleID, from, to Queue) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("unknown queue in move %q -> %q", from, to)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var item Item
	if err := s.bh.Get(bid.String(), &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return ErrNotFound
		}
		return err
	}

	if item.CurrentQueue() != from {
		return fmt.Errorf("%w: in %q, expected %q", ErrQueueConflict, item.Queue, from)
	}

	item.Queue = string(to)
	item.LastTouched = time.Now().UTC()
	if to == QueueExpired && item.ExpiredAt.IsZero() {
		item.ExpiredAt = item.LastTouched
	}

	if err := s.bh.Update(item.Id, item); err != nil {
		return err
	}

	switch {
	case from.IsLive() && !to.IsLive():
		s.liveBytes -= item.PayloadSize
	case !from.IsLive() && to.IsLive():
		s.liveBytes += item.PayloadSize
	}

	log.WithFields(log.Fields{
		"bundle": item.Id,
		"from":   from,
		"to":     to,
	}).Debug("Store moved bundle")

	return nil
}

// update applies a mutation to an Item under the store mutex.
func (s *Store) update(bid bundle.BundleID, mutate func(*Item)) (Item, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var item Item
	if err := s.bh.Get(bid.String(), &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return item, ErrNotFound
		}
		return item, err
	}

	mutate(&item)
	item.LastTouched = time.Now().UTC()

	return item, s.bh.Update(item.Id, item)
}

// AddPeerSeen records that a peer acknowledged possession of the bundle.
func (s *Store) AddPeerSeen(bid bundle.BundleID, peer string) (Item, error) {
	return s.update(bid, func(item *Item) {
		if !item.HasPeerSeen(peer) {
			item.PeersSeen = append(item.PeersSeen, peer)
		}
	})
}

// AddDeliveredTo records a delivery to a local subscription.
func (s *Store) AddDeliveredTo(bid bundle.BundleID, subscription string) (Item, error) {
	return s.update(bid, func(item *Item) {
		for _, sub := range item.DeliveredTo {
			if sub == subscription {
				return
			}
		}
		item.DeliveredTo = append(item.DeliveredTo, subscription)
	})
}

// IncrementHops counts one further forward of the bundle by this node.
func (s *Store) IncrementHops(bid bundle.BundleID) (Item, error) {
	return s.update(bid, func(item *Item) {
		item.HopsSeen++
	})
}

// MarkReceiptEmitted records that a receipt of the given kind was emitted.
func (s *Store) MarkReceiptEmitted(bid bundle.BundleID, kind bundle.ReceiptKind) (Item, error) {
	return s.update(bid, func(item *Item) {
		switch kind {
		case bundle.ReceiptReceived:
			item.EmittedReceipts |= uint8(bundle.RequestReceived)
		case bundle.ReceiptForwarded:
			item.EmittedReceipts |= uint8(bundle.RequestForwarded)
		case bundle.ReceiptDelivered:
			item.EmittedReceipts |= uint8(bundle.RequestDelivered)
		case bundle.ReceiptExpired:
			item.EmittedReceipts |= uint8(bundle.RequestExpired)
		}
	})
}

// Touch refreshes the Item's LastTouched instant.
func (s *Store) Touch(bid bundle.BundleID) (Item, error) {
	return s.update(bid, func(*Item) {})
}

// ListQueue returns up to limit Items of one queue, ordered by priority
// descending and enqueue instant ascending. A non-positive limit returns
// everything.
func (s *Store) ListQueue(queue Queue, limit int) (items []Item, err error) {
	if err = s.bh.Find(&items, badgerhold.Where("Queue").Eq(string(queue))); err != nil {
		return
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		if !items[i].EnqueuedAt.Equal(items[j].EnqueuedAt) {
			return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
		}
		return items[i].Id < items[j].Id
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return
}

// ListLive returns the Items of all live queues.
func (s *Store) ListLive() (items []Item, err error) {
	for _, queue := range Queues() {
		if !queue.IsLive() {
			continue
		}

		queueItems, queueErr := s.ListQueue(queue, 0)
		if queueErr != nil {
			err = queueErr
			return
		}
		items = append(items, queueItems...)
	}
	return
}

// ListTopic returns all Items of one topic enqueued at or after since,
// oldest first.
func (s *Store) ListTopic(topic string, since time.Time) (items []Item, err error) {
	if err = s.bh.Find(&items, badgerhold.Where("Topic").Eq(topic)); err != nil {
		return
	}

	filtered := items[:0]
	for _, item := range items {
		if !item.EnqueuedAt.Before(since) {
			filtered = append(filtered, item)
		}
	}
	items = filtered

	sort.Slice(items, func(i, j int) bool {
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})
	return
}

// QueryExpiring returns the Items of live queues whose expiry passed.
func (s *Store) QueryExpiring(now time.Time) (items []Item, err error) {
	var candidates []Item
	if err = s.bh.Find(&candidates, badgerhold.Where("Expires").Lt(now)); err != nil {
		return
	}

	for _, item := range candidates {
		if item.CurrentQueue().IsLive() {
			items = append(items, item)
		}
	}
	return
}

// QueryPurgeable returns expired Items past the grace window and
// quarantined Items past the diagnostic window.
func (s *Store) QueryPurgeable(now time.Time, grace, diagnostic time.Duration) (items []Item, err error) {
	var expired []Item
	if err = s.bh.Find(&expired, badgerhold.Where("Queue").Eq(string(QueueExpired))); err != nil {
		return
	}
	for _, item := range expired {
		if !item.ExpiredAt.IsZero() && now.Sub(item.ExpiredAt) > grace {
			items = append(items, item)
		}
	}

	var quarantined []Item
	if err = s.bh.Find(&quarantined, badgerhold.Where("Queue").Eq(string(QueueQuarantine))); err != nil {
		return
	}
	for _, item := range quarantined {
		if now.Sub(item.EnqueuedAt) > diagnostic {
			items = append(items, item)
		}
	}
	return
}

// Purge removes a bundle for good. Purging is only permitted from the
// expired queue (after grace) or from quarantine, and is idempotent.
func (s *Store) Purge(bid bundle.BundleID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var item Item
	if err := s.bh.Get(bid.String(), &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return err
	}

	switch item.CurrentQueue() {
	case QueueExpired, QueueQuarantine:
		// allowed
	default:
		return fmt.Errorf("purge from %q is not permitted", item.Queue)
	}

	return s.removeLocked(item, item.Expires)
}

// Evict removes a live bundle under cache pressure. Its id stays
// duplicate-suppressed until the bundle's natural expiry, so copies still
// circulating elsewhere do not re-enter through the back door.
func (s *Store) Evict(bid bundle.BundleID) (Item, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var item Item
	if err := s.bh.Get(bid.String(), &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return item, ErrNotFound
		}
		return item, err
	}

	if !item.CurrentQueue().IsLive() {
		return item, fmt.Errorf("eviction from %q is not permitted", item.Queue)
	}

	return item, s.removeLocked(item, item.Expires)
}

// removeLocked deletes row and envelope file and records the grace entry.
func (s *Store) removeLocked(item Item, suppressUntil time.Time) error {
	if err := s.bh.Delete(item.Id, Item{}); err != nil {
		return err
	}

	if err := item.deleteEnvelope(); err != nil && !os.IsNotExist(err) {
		log.WithFields(log.Fields{
			"bundle": item.Id,
			"file":   item.Filename,
			"error":  err,
		}).Warn("Failed to delete envelope file")
	}

	if item.CurrentQueue().IsLive() {
		s.liveBytes -= item.PayloadSize
	}

	if time.Now().Before(suppressUntil) {
		s.purged.Add(item.Id, suppressUntil)
	}

	log.WithFields(log.Fields{
		"bundle": item.Id,
		"queue":  item.Queue,
	}).Info("Store removed bundle")

	return nil
}
