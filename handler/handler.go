// Package handler provides the HTTP handlers for the collection server.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/stevemurr/collection-server/logging"
	"github.com/stevemurr/collection-server/paginate"
	"github.com/stevemurr/collection-server/store"
)

const apiPrefix = "/api"

// DefaultMaxBodyBytes caps request bodies unless WithMaxBodyBytes says otherwise.
const DefaultMaxBodyBytes int64 = 1 << 20

const (
	msgAdded      = "Data added successfully"
	msgUpdated    = "Data updated successfully"
	msgDeleted    = "Data deleted successfully"
	msgDeletedAll = "All data deleted successfully"
	msgNotFound   = "Data not found"
)

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store  store.Store
	router *mux.Router
	chain  http.Handler
	log    *slog.Logger

	allowedOrigins []string
	defaultPerPage int
	maxPerPage     int
	maxBodyBytes   int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the base logger for request logs.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithAllowedOrigins sets the CORS origin allow-list. "*" allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.allowedOrigins = origins }
}

// WithPageSizes sets the page size used when the client sends none and the
// upper bound applied to client-supplied sizes.
func WithPageSizes(defaultPerPage, maxPerPage int) Option {
	return func(h *Handler) {
		h.defaultPerPage = defaultPerPage
		h.maxPerPage = maxPerPage
	}
}

// WithMaxBodyBytes limits the size of create and replace bodies.
// Values below 1 keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// New creates a Handler and wires up all routes.
func New(s store.Store, opts ...Option) *Handler {
	h := &Handler{
		store:          s,
		router:         mux.NewRouter(),
		log:            logging.NewNopLogger(),
		allowedOrigins: []string{"*"},
		defaultPerPage: 10,
		maxPerPage:     100,
		maxBodyBytes:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()
	h.chain = h.logRequests(corsMiddleware(h.router, h.allowedOrigins))
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	r := h.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Health / status
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix(apiPrefix).Subrouter()
	api.HandleFunc("", h.listCollections).Methods(http.MethodGet)
	api.HandleFunc("/{collection}", h.listRecords).Methods(http.MethodGet)
	api.HandleFunc("/{collection}", h.createRecord).Methods(http.MethodPost)
	api.HandleFunc("/{collection}/action/delete-all", h.deleteAll).Methods(http.MethodDelete)
	api.HandleFunc("/{collection}/{id}", h.getRecord).Methods(http.MethodGet)
	api.HandleFunc("/{collection}/{id}", h.replaceRecord).Methods(http.MethodPut)
	api.HandleFunc("/{collection}/{id}", h.deleteRecord).Methods(http.MethodDelete)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

var errNotObject = errors.New("request body must be a JSON object")

// readFields decodes the request body as a JSON object. An empty body is an
// empty object.
func (h *Handler) readFields(w http.ResponseWriter, r *http.Request) (store.Record, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return store.Record{}, nil
		}
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON object")
	}
	return store.Record(obj), nil
}

// writeBodyError reports a body that could not be read as a JSON object.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
}

// writeStoreError maps store errors onto HTTP statuses.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, store.ErrInvalidCollection):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context()).Error("store operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
	}
}

// pageParams reads page and perPage from the query string.
func (h *Handler) pageParams(r *http.Request) (paginate.Params, error) {
	p := paginate.Params{Page: 1, PerPage: h.defaultPerPage}
	q := r.URL.Query()
	if s := q.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("%w: page %q is not an integer", paginate.ErrInvalidParams, s)
		}
		p.Page = n
	}
	if s := q.Get("perPage"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("%w: perPage %q is not an integer", paginate.ErrInvalidParams, s)
		}
		p.PerPage = n
	}
	if p.PerPage > h.maxPerPage {
		p.PerPage = h.maxPerPage
	}
	return p, nil
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "Collection Server",
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- collection list ----------

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListCollections(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// ---------- record CRUD ----------

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	params, err := h.pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.store.List(r.Context(), collection)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	view, err := paginate.Build(records, params, apiPrefix+"/"+collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := h.store.Get(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	fields, err := h.readFields(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	rec, err := h.store.Insert(r.Context(), collection, fields)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      rec["id"],
		"message": msgAdded,
	})
}

func (h *Handler) replaceRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fields, err := h.readFields(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	if _, err := h.store.Replace(r.Context(), vars["collection"], vars["id"], fields); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgUpdated)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.store.Delete(r.Context(), vars["collection"], vars["id"]); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgDeleted)
}

func (h *Handler) deleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAll(r.Context(), mux.Vars(r)["collection"]); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgDeletedAll)
}
