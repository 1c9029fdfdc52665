// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package contact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dtn7/cboring"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
)

// Handler is the node-side logic a Session drives. All methods are called
// from the session's read loop, one at a time, except FetchDeliver, which
// runs on the session's delivery goroutine and must be safe to call
// concurrently with the others.
type Handler interface {
	// LocalHello describes this node for the opening HELLO.
	LocalHello() Hello

	// OnPeerHello is called once after the peer's HELLO arrived.
	OnPeerHello(h Hello)

	// OfferFor selects the bundles to offer the peer, ordered for
	// transmission, within the peer's advertised byte budget.
	OfferFor(peerId string, peerKey []byte, budget uint64) ([]OfferEntry, error)

	// Wants filters an incoming offer down to the ids this node lacks.
	Wants(entries []OfferEntry) []bundle.BundleID

	// FetchDeliver loads a wanted bundle for transmission.
	FetchDeliver(id bundle.BundleID) (Deliver, error)

	// Admit runs the admission pipeline on a delivered bundle. A nil
	// return acknowledges the bundle; duplicates are acknowledged too so
	// the sender stops reoffering.
	Admit(peerId string, d Deliver) *Nack

	// OnPeerAcked records that the peer accepted a bundle.
	OnPeerAcked(peerId string, id bundle.BundleID)

	// OnPeerNacked records a rejected delivery.
	OnPeerNacked(peerId string, n Nack)
}

// ErrVersionMismatch is returned by a Session whose peer speaks another
// protocol version.
var ErrVersionMismatch = errors.New("peer speaks an incompatible protocol version")

// errSessionClosed rejects sends on a stopping Session.
var errSessionClosed = errors.New("session is closed")

// teardownGrace bounds how long a stopping Session may stay blocked in a
// transport read or write before the deadline cuts it loose.
const teardownGrace = time.Second

// outFrame is one queued outgoing message with its body already marshaled.
type outFrame struct {
	kind Kind
	body []byte
}

// Session is one peer contact over a reliable byte stream. Both sides run
// the sender and receiver role of the sync protocol.
//
// A Session splits into a read loop and a write loop. The read loop never
// writes to the transport itself: small control messages go through an
// unbounded queue the write loop drains, DELIVERs are streamed by a
// delivery goroutine through a bounded channel. The read loop therefore
// always keeps reading, even while a large DELIVER stream towards the
// peer has filled the transport's buffers. Two nodes pushing bulk traffic
// at each other at the same time stay live this way.
type Session struct {
	conn    io.ReadWriteCloser
	handler Handler

	peer      Hello
	helloDone bool

	// lastOffer preserves the transmission order of this node's last
	// OFFER, so WANTed bundles are delivered in priority order.
	lastOffer []OfferEntry

	group *errgroup.Group

	outMutex  sync.Mutex
	outQueue  []outFrame
	outSignal chan struct{}
	started   bool

	deliverChan chan outFrame

	stop     chan struct{}
	stopOnce sync.Once

	closeOnce sync.Once
}

// NewSession wraps an established transport stream. Run drives the
// protocol until BYE or transport loss.
func NewSession(conn io.ReadWriteCloser, handler Handler) *Session {
	return &Session{
		conn:    conn,
		handler: handler,

		outSignal:   make(chan struct{}, 1),
		deliverChan: make(chan outFrame),
		stop:        make(chan struct{}),
	}
}

// PeerId of the connected peer, empty before the HELLO exchange.
func (sess *Session) PeerId() string {
	return sess.peer.NodeId
}

// send marshals a control message and hands it to the write loop. It never
// blocks on the transport; DELIVERs take the bounded channel instead.
func (sess *Session) send(kind Kind, body cboring.CborMarshaler) error {
	var buf bytes.Buffer
	if body != nil {
		if err := cboring.Marshal(body, &buf); err != nil {
			return err
		}
	}

	if sess.stopping() {
		return errSessionClosed
	}

	sess.outMutex.Lock()
	sess.outQueue = append(sess.outQueue, outFrame{kind: kind, body: buf.Bytes()})
	sess.outMutex.Unlock()

	select {
	case sess.outSignal <- struct{}{}:
	default:
	}
	return nil
}

// dequeue pops the next queued control frame.
func (sess *Session) dequeue() (f outFrame, ok bool) {
	sess.outMutex.Lock()
	defer sess.outMutex.Unlock()

	if len(sess.outQueue) == 0 {
		return
	}

	f, ok = sess.outQueue[0], true
	sess.outQueue = sess.outQueue[1:]
	return
}

// stopNow moves the Session into teardown: senders are rejected and a
// deadline frees both loops from a blocked transport call.
func (sess *Session) stopNow() {
	sess.stopOnce.Do(func() {
		close(sess.stop)

		if conn, ok := sess.conn.(net.Conn); ok {
			_ = conn.SetDeadline(time.Now().Add(teardownGrace))
		}
	})
}

func (sess *Session) stopping() bool {
	select {
	case <-sess.stop:
		return true
	default:
		return false
	}
}

// Close tears the session down cleanly. A BYE is attempted on a best
// effort basis before the transport closes.
func (sess *Session) Close() (err error) {
	sess.closeOnce.Do(func() {
		_ = sess.send(KindBye, nil)
		sess.stopNow()

		sess.outMutex.Lock()
		started := sess.started
		sess.outMutex.Unlock()

		// Without a running Run, nobody else will release the transport.
		if !started {
			err = sess.conn.Close()
		}
	})
	return
}

// Run executes the session until BYE, transport loss or a protocol error.
// The transport is closed on return. Interrupting the transport at any
// point is safe: bundles mid-DELIVER were not admitted yet and sender
// state is advisory only.
func (sess *Session) Run() error {
	defer func() { _ = sess.conn.Close() }()

	if err := sess.send(KindHello, hello(sess.handler.LocalHello())); err != nil {
		return err
	}

	sess.outMutex.Lock()
	sess.started = true
	sess.group = new(errgroup.Group)
	sess.outMutex.Unlock()

	sess.group.Go(sess.writeLoop)
	sess.group.Go(sess.readLoop)

	return sess.group.Wait()
}

// writeLoop serializes all outgoing messages onto the transport, control
// frames before pending DELIVERs. On stop it flushes the control queue, a
// BYE usually among it, within the teardown grace.
func (sess *Session) writeLoop() error {
	for {
		if f, ok := sess.dequeue(); ok {
			if err := writeFrame(sess.conn, f.kind, f.body); err != nil {
				return sess.writeFailed(err)
			}
			continue
		}

		select {
		case <-sess.outSignal:

		case f := <-sess.deliverChan:
			if err := writeFrame(sess.conn, f.kind, f.body); err != nil {
				return sess.writeFailed(err)
			}

		case <-sess.stop:
			for {
				f, ok := sess.dequeue()
				if !ok {
					return nil
				}
				if err := writeFrame(sess.conn, f.kind, f.body); err != nil {
					return nil
				}
			}
		}
	}
}

// writeFailed maps a transport write error: silence during teardown, a
// stop plus transport close otherwise, so the blocked read loop wakes.
func (sess *Session) writeFailed(err error) error {
	if sess.stopping() {
		return nil
	}

	sess.stopNow()
	_ = sess.conn.Close()
	return err
}

// readLoop receives and dispatches messages until BYE, transport loss or
// a protocol error, then stops the session.
func (sess *Session) readLoop() error {
	defer sess.stopNow()

	for {
		kind, body, err := ReadMessage(sess.conn)
		if err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) || sess.stopping() {
				return nil
			}
			return err
		}

		// HELLO must come first; anything else is a protocol violation.
		if !sess.helloDone && kind != KindHello {
			return fmt.Errorf("received %v before HELLO", kind)
		}

		switch kind {
		case KindHello:
			if err := sess.onHello(body); err != nil {
				return err
			}

		case KindOffer:
			if err := sess.onOffer(body); err != nil {
				return err
			}

		case KindWant:
			if err := sess.onWant(body); err != nil {
				return err
			}

		case KindDeliver:
			if err := sess.onDeliver(body); err != nil {
				return err
			}

		case KindAck:
			var ack Ack
			if err := unmarshal(&ack, body); err != nil {
				return err
			}
			sess.handler.OnPeerAcked(sess.peer.NodeId, ack.Id)

		case KindNack:
			var nack Nack
			if err := unmarshal(&nack, body); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"peer":   sess.peer.NodeId,
				"bundle": nack.Id,
				"reason": nack.Reason,
			}).Info("Peer rejected bundle")
			sess.handler.OnPeerNacked(sess.peer.NodeId, nack)

		case KindBye:
			return nil

		default:
			return fmt.Errorf("received unknown message kind %d", kind)
		}
	}
}

func (sess *Session) onHello(body []byte) error {
	if sess.helloDone {
		return fmt.Errorf("received a second HELLO")
	}

	var h Hello
	if err := unmarshal(&h, body); err != nil {
		return err
	}

	if h.Version != ProtocolVersion {
		log.WithFields(log.Fields{
			"peer":    h.NodeId,
			"version": h.Version,
		}).Warn("Peer speaks an incompatible protocol version")

		_ = sess.send(KindBye, nil)
		return ErrVersionMismatch
	}

	sess.peer = h
	sess.helloDone = true
	sess.handler.OnPeerHello(h)

	log.WithFields(log.Fields{
		"peer":      h.NodeId,
		"available": h.AvailableBytes,
	}).Debug("Session established")

	return sess.sendOffer()
}

// sendOffer computes and transmits a fresh OFFER for the peer.
func (sess *Session) sendOffer() error {
	entries, err := sess.handler.OfferFor(sess.peer.NodeId, sess.peer.PublicKey, sess.peer.AvailableBytes)
	if err != nil {
		return err
	}

	sess.lastOffer = entries
	return sess.send(KindOffer, &Offer{Entries: entries})
}

func (sess *Session) onOffer(body []byte) error {
	var offer Offer
	if err := unmarshal(&offer, body); err != nil {
		return err
	}

	wants := sess.handler.Wants(offer.Entries)
	return sess.send(KindWant, &Want{Ids: wants})
}

// onWant starts streaming the wanted bundles. The streaming itself runs
// on a delivery goroutine: blocking here would stall the read loop, and a
// stalled read loop stalls the peer's writes.
func (sess *Session) onWant(body []byte) error {
	var want Want
	if err := unmarshal(&want, body); err != nil {
		return err
	}

	wanted := make(map[bundle.BundleID]struct{}, len(want.Ids))
	for _, id := range want.Ids {
		wanted[id] = struct{}{}
	}

	// Deliver in the order of the last offer, which is transmission order.
	var entries []OfferEntry
	for _, entry := range sess.lastOffer {
		if _, ok := wanted[entry.Id]; ok {
			entries = append(entries, entry)
		}
	}

	sess.group.Go(func() error {
		sess.deliverWanted(entries)
		return nil
	})
	return nil
}

// deliverWanted loads, marshals and queues the wanted bundles one at a
// time. The bounded channel gives transport backpressure without holding
// more than one marshaled bundle in memory.
func (sess *Session) deliverWanted(entries []OfferEntry) {
	for _, entry := range entries {
		d, err := sess.handler.FetchDeliver(entry.Id)
		if err != nil {
			log.WithFields(log.Fields{
				"peer":   sess.peer.NodeId,
				"bundle": entry.Id,
				"error":  err,
			}).Warn("Failed to load wanted bundle, skipping")
			continue
		}

		var buf bytes.Buffer
		if err := cboring.Marshal(&d, &buf); err != nil {
			log.WithFields(log.Fields{
				"peer":   sess.peer.NodeId,
				"bundle": entry.Id,
				"error":  err,
			}).Warn("Failed to marshal wanted bundle, skipping")
			continue
		}

		select {
		case sess.deliverChan <- outFrame{kind: KindDeliver, body: buf.Bytes()}:
		case <-sess.stop:
			return
		}
	}
}

func (sess *Session) onDeliver(body []byte) error {
	var d Deliver
	if err := unmarshal(&d, body); err != nil {
		return err
	}

	var e bundle.Envelope
	if err := e.UnmarshalBinary(d.Envelope); err != nil {
		// Without a parsable envelope there is no id to NACK.
		log.WithFields(log.Fields{
			"peer":  sess.peer.NodeId,
			"error": err,
		}).Warn("Received an unparsable envelope")
		return nil
	}

	bid, err := e.ID()
	if err != nil {
		return nil
	}

	if nack := sess.handler.Admit(sess.peer.NodeId, d); nack != nil {
		return sess.send(KindNack, nack)
	}
	return sess.send(KindAck, &Ack{Id: bid})
}

// hello adapts a Hello value to the marshaler interface.
func hello(h Hello) *Hello {
	return &h
}
