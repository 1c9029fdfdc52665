// SPDX-FileCopyrightText: 2026 The driftmesh authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh-go/pkg/bundle"
	"github.com/driftmesh/driftmesh-go/pkg/keyring"
	"github.com/driftmesh/driftmesh-go/pkg/node"
	"github.com/driftmesh/driftmesh-go/pkg/store"
)

// Server is the HTTP surface of one Node. It is a thin adapter: every
// handler maps onto one of the node's entry points.
type Server struct {
	node   *node.Node
	router *mux.Router

	upgrader websocket.Upgrader
}

// NewServer creates a Server for the given node and binds its routes.
func NewServer(n *node.Node) (srv *Server) {
	srv = &Server{
		node:   n,
		router: mux.NewRouter(),
	}

	srv.router.HandleFunc("/submit", srv.handleSubmit).Methods(http.MethodPost)
	srv.router.HandleFunc("/bundle/{id}", srv.handleBundle).Methods(http.MethodGet)
	srv.router.HandleFunc("/status/{id}", srv.handleStatus).Methods(http.MethodGet)
	srv.router.HandleFunc("/queue/{name}", srv.handleQueue).Methods(http.MethodGet)
	srv.router.HandleFunc("/keyring/{ring}", srv.handleKeyringList).Methods(http.MethodGet)
	srv.router.HandleFunc("/keyring/{ring}", srv.handleKeyringAdd).Methods(http.MethodPost)
	srv.router.HandleFunc("/keyring/{ring}/export", srv.handleKeyringExport).Methods(http.MethodPost)
	srv.router.HandleFunc("/keyring/{ring}/{key}", srv.handleKeyringRemove).Methods(http.MethodDelete)
	srv.router.HandleFunc("/subscribe/{filter:.*}", srv.handleSubscribe).Methods(http.MethodGet)
	srv.router.HandleFunc("/info", srv.handleInfo).Methods(http.MethodGet)
	srv.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return
}

// ServeHTTP implements http.Handler.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.router.ServeHTTP(w, r)
}

// respond writes a JSON body with the given status code.
func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write JSON response")
	}
}

// errorStatus maps a node error to an HTTP status code.
func errorStatus(err error) int {
	var (
		validationErr *node.ValidationError
		authErr       *node.AuthError
		policyErr     *node.PolicyError
		resourceErr   *node.ResourceError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusForbidden
	case errors.As(err, &policyErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &resourceErr):
		return http.StatusInsufficientStorage
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (srv *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var submitRequest SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&submitRequest); err != nil {
		respond(w, http.StatusBadRequest, SubmitResponse{Error: err.Error()})
		return
	}

	req, err := srv.submitRequest(submitRequest)
	if err != nil {
		respond(w, http.StatusBadRequest, SubmitResponse{Error: err.Error()})
		return
	}

	bid, err := srv.node.Submit(req)
	if err != nil {
		respond(w, errorStatus(err), SubmitResponse{Error: err.Error()})
		return
	}

	respond(w, http.StatusOK, SubmitResponse{Id: bid.String()})
}

// submitRequest translates the JSON representation into the node's.
func (srv *Server) submitRequest(req SubmitRequest) (sr node.SubmitRequest, err error) {
	sr = node.SubmitRequest{
		Topic:       req.Topic,
		PayloadType: req.PayloadType,
		Payload:     req.Payload,
		HopLimit:    req.HopLimit,
	}

	if req.Priority != "" {
		if sr.Priority, err = bundle.ParsePriority(req.Priority); err != nil {
			return
		}
	}
	if req.Audience != "" {
		if sr.Audience, err = bundle.ParseAudience(req.Audience); err != nil {
			return
		}
	}
	if req.TTL != "" {
		if sr.TTL, err = time.ParseDuration(req.TTL); err != nil {
			return
		}
	}
	if req.ExpiresAt != nil {
		sr.ExpiresAt = *req.ExpiresAt
	}

	if req.Receipts != nil {
		if len(*req.Receipts) == 0 {
			sr.NoReceipts = true
		}
		for _, name := range *req.Receipts {
			switch name {
			case "received":
				sr.ReceiptPolicy |= bundle.RequestReceived
			case "forwarded":
				sr.ReceiptPolicy |= bundle.RequestForwarded
			case "delivered":
				sr.ReceiptPolicy |= bundle.RequestDelivered
			case "expired":
				sr.ReceiptPolicy |= bundle.RequestExpired
			default:
				err = errors.New("unknown receipt kind " + strconv.Quote(name))
				return
			}
		}
	}

	return
}

func (srv *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	bid, err := bundle.ParseBundleID(mux.Vars(r)["id"])
	if err != nil {
		respond(w, http.StatusBadRequest, BundleResponse{Error: err.Error()})
		return
	}

	e, item, err := srv.node.Fetch(bid)
	if err != nil {
		respond(w, errorStatus(err), BundleResponse{Error: err.Error()})
		return
	}

	respond(w, http.StatusOK, BundleResponse{
		Id:          item.Id,
		Topic:       e.Topic,
		PayloadType: e.PayloadType,
		Payload:     e.Payload,
		Priority:    e.Priority.String(),
		Audience:    e.Audience.String(),
		Producer:    e.Producer,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
		HopLimit:    e.HopLimit,
		Queue:       item.Queue,
		HopsSeen:    item.HopsSeen,
		PeersSeen:   item.PeersSeen,
	})
}

func (srv *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	bid, err := bundle.ParseBundleID(mux.Vars(r)["id"])
	if err != nil {
		respond(w, http.StatusBadRequest, StatusResponse{Error: err.Error()})
		return
	}

	events, err := srv.node.DeliveryStatus(bid)
	if err != nil {
		respond(w, errorStatus(err), StatusResponse{Error: err.Error()})
		return
	}

	respond(w, http.StatusOK, StatusResponse{Id: bid.String(), Events: events})
}

func (srv *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := store.ParseQueue(mux.Vars(r)["name"])
	if err != nil {
		respond(w, http.StatusBadRequest, QueueResponse{Error: err.Error()})
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			respond(w, http.StatusBadRequest, QueueResponse{Error: err.Error()})
			return
		}
	}

	items, err := srv.node.Store().ListQueue(queue, limit)
	if err != nil {
		respond(w, errorStatus(err), QueueResponse{Error: err.Error()})
		return
	}

	entries := make([]QueueEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, queueEntry(item))
	}
	respond(w, http.StatusOK, QueueResponse{Entries: entries})
}

func (srv *Server) handleKeyringList(w http.ResponseWriter, r *http.Request) {
	ring, err := keyring.ParseRing(mux.Vars(r)["ring"])
	if err != nil {
		respond(w, http.StatusBadRequest, KeyringResponse{Error: err.Error()})
		return
	}

	entries, err := srv.node.Keyring().List(ring)
	if err != nil {
		respond(w, errorStatus(err), KeyringResponse{Error: err.Error()})
		return
	}

	resp := KeyringResponse{Entries: make([]KeyringEntry, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, KeyringEntry{
			PublicKey: entry.PublicKey,
			AddedAt:   entry.AddedAt,
			Note:      entry.Note,
		})
	}
	respond(w, http.StatusOK, resp)
}

func (srv *Server) handleKeyringAdd(w http.ResponseWriter, r *http.Request) {
	ring, err := keyring.ParseRing(mux.Vars(r)["ring"])
	if err != nil {
		respond(w, http.StatusBadRequest, KeyringResponse{Error: err.Error()})
		return
	}

	var addRequest KeyringAddRequest
	if err := json.NewDecoder(r.Body).Decode(&addRequest); err != nil {
		respond(w, http.StatusBadRequest, KeyringResponse{Error: err.Error()})
		return
	}

	if err := srv.node.Keyring().Add(ring, addRequest.PublicKey, addRequest.Note); err != nil {
		respond(w, http.StatusBadRequest, KeyringResponse{Error: err.Error()})
		return
	}

	log.WithFields(log.Fields{
		"ring": ring,
		"note": addRequest.Note,
	}).Info("Added key over the API")

	respond(w, http.StatusOK, KeyringResponse{})
}

func (srv *Server) handleKeyringExport(w http.ResponseWriter, r *http.Request) {
	ring, err := keyring.ParseRing(mux.Vars(r)["ring"])
	if err != nil {
		respond(w, http.StatusBadRequest, SubmitResponse{Error: err.Error()})
		return
	}

	bid, err := srv.node.ExportKeyring(ring)
	if err != nil {
		respond(w, errorStatus(err), SubmitResponse{Error: err.Error()})
		return
	}

	respond(w, http.StatusOK, SubmitResponse{Id: bid.String()})
}

func (srv *Server) handleKeyringRemove(w http.ResponseWriter, r *http.Request) {
	ring, err := keyring.ParseRing(mux.Vars(r)["ring"])
	if err != nil {
		respond(w, http.StatusBadRequest, KeyringResponse{Error: err.Error()})
		return
	}

	publicKey, err := parseHexKey(mux.Vars(r)["key"])
	if err != nil {
		respond(w, http.StatusBadRequest, KeyringResponse{Error: err.Error()})
		return
	}

	if err := srv.node.Keyring().Remove(ring, publicKey); err != nil {
		respond(w, http.StatusBadRequest, KeyringResponse{Error: err.Error()})
		return
	}

	respond(w, http.StatusOK, KeyringResponse{})
}

func (srv *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, InfoResponse{
		NodeId:         srv.node.Id(),
		PublicKey:      srv.node.PublicKey(),
		Role:           string(srv.node.Role()),
		LiveBytes:      srv.node.Store().LiveBytes(),
		AvailableBytes: srv.node.AvailableBytes(),
	})
}

func priorityName(p uint8) string {
	return bundle.Priority(p).String()
}

// parseHexKey decodes a hex encoded ed25519 public key from a URL part.
func parseHexKey(s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errors.New("public key must be 32 bytes")
	}
	return raw, nil
}
