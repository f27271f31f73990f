package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/shadowsync/core/logger"
	"github.com/relabs-tech/shadowsync/shadow"
	"github.com/relabs-tech/shadowsync/shadowstore"
)

// DocumentStore is the slice of shadowstore.Store the API needs.
type DocumentStore interface {
	Load(thing string) (shadowstore.Record, error)
	Apply(thing string, request shadow.Document) (shadowstore.Record, shadow.State, error)
	Delete(thing string) error
}

// API is the RESTful interface for the shadow documents.
type API struct {
	store      DocumentStore
	publisher  shadowstore.MessagePublisher
	topicRoot  string
	deviceRoot string
}

// Builder is a builder helper for the API.
type Builder struct {
	// Store is the shadow document store. This is mandatory.
	Store DocumentStore
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Publisher is a message publisher for delta events. Optional; without
	// it, devices only learn about new desired state on their next get.
	Publisher shadowstore.MessagePublisher
	// TopicRoot is the root of the shadow service topics. The default is
	// shadow.DefaultTopicRoot.
	TopicRoot string
	// DeviceRoot is the root of the observer topics. The default is
	// shadow.DefaultDeviceRoot.
	DeviceRoot string
	// JWTSecret guards the mutating routes with a bearer-token middleware
	// when set. Reads stay open.
	JWTSecret string
}

// NewAPI realizes the actual API and adds the routes to the router.
func NewAPI(b *Builder) *API {

	if b.Store == nil {
		panic("store is missing")
	}
	if b.Router == nil {
		panic("router is missing")
	}

	topicRoot := b.TopicRoot
	if topicRoot == "" {
		topicRoot = shadow.DefaultTopicRoot
	}
	deviceRoot := b.DeviceRoot
	if deviceRoot == "" {
		deviceRoot = shadow.DefaultDeviceRoot
	}

	a := &API{
		store:      b.Store,
		publisher:  b.Publisher,
		topicRoot:  topicRoot,
		deviceRoot: deviceRoot,
	}
	if b.JWTSecret != "" {
		// reads stay open, mutations need a token
		bearer := NewBearerMiddleware(b.JWTSecret)
		b.Router.Use(func(h http.Handler) http.Handler {
			guarded := bearer(h)
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					h.ServeHTTP(w, r)
					return
				}
				guarded.ServeHTTP(w, r)
			})
		})
	}
	a.handleRoutes(b.Router)

	return a
}

// handleRoutes adds handlers for the shadow document routes
func (a *API) handleRoutes(router *mux.Router) {
	log.Println("shadow: handle route /things/{thing_name}/shadow GET,DELETE")
	log.Println("shadow: handle route /things/{thing_name}/shadow/desired GET,PUT")
	log.Println("shadow: handle route /things/{thing_name}/shadow/reported GET,PUT")

	router.Handle("/things/{thing_name}/shadow",
		handlers.CompressHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			thing := mux.Vars(r)["thing_name"]
			record, err := a.store.Load(thing)
			if err == shadowstore.ErrNotFound {
				http.Error(w, "no such shadow", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			jsonData, _ := json.MarshalIndent(record, "", " ")
			w.Write(jsonData)
		}))).Methods(http.MethodGet)

	router.HandleFunc("/things/{thing_name}/shadow", func(w http.ResponseWriter, r *http.Request) {
		thing := mux.Vars(r)["thing_name"]
		err := a.store.Delete(thing)
		if err == shadowstore.ErrNotFound {
			http.Error(w, "no such shadow", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	router.HandleFunc("/things/{thing_name}/shadow/desired", func(w http.ResponseWriter, r *http.Request) {
		a.readSide(w, r, func(record shadowstore.Record) shadow.State { return record.Desired })
	}).Methods(http.MethodGet)

	router.HandleFunc("/things/{thing_name}/shadow/reported", func(w http.ResponseWriter, r *http.Request) {
		a.readSide(w, r, func(record shadowstore.Record) shadow.State { return record.Reported })
	}).Methods(http.MethodGet)

	router.HandleFunc("/things/{thing_name}/shadow/desired", func(w http.ResponseWriter, r *http.Request) {
		a.writeSide(w, r, func(state shadow.State) shadow.StateDocument {
			return shadow.StateDocument{Desired: state}
		})
	}).Methods(http.MethodPut)

	router.HandleFunc("/things/{thing_name}/shadow/reported", func(w http.ResponseWriter, r *http.Request) {
		a.writeSide(w, r, func(state shadow.State) shadow.StateDocument {
			return shadow.StateDocument{Reported: state}
		})
	}).Methods(http.MethodPut)
}

func (a *API) readSide(w http.ResponseWriter, r *http.Request, side func(shadowstore.Record) shadow.State) {
	thing := mux.Vars(r)["thing_name"]
	record, err := a.store.Load(thing)
	if err == shadowstore.ErrNotFound {
		http.Error(w, "no such shadow", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	jsonData, _ := json.MarshalIndent(side(record), "", " ")
	w.Write(jsonData)
}

func (a *API) writeSide(w http.ResponseWriter, r *http.Request, wrap func(shadow.State) shadow.StateDocument) {
	rlog := logger.FromContext(r.Context())
	thing := mux.Vars(r)["thing_name"]
	body, _ := io.ReadAll(r.Body)

	var state shadow.State
	if err := json.Unmarshal(body, &state); err != nil || len(state) == 0 {
		http.Error(w, "invalid json data", http.StatusBadRequest)
		return
	}

	record, delta, err := a.store.Apply(thing, shadow.Document{State: wrap(state)})
	if err != nil {
		rlog.Errorln("apply shadow update:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rlog.Infoln("shadow of", thing, "updated to version", record.Version)

	if a.publisher != nil && len(delta) > 0 {
		topics := shadow.NewTopics(a.topicRoot, thing)
		payload, err := json.Marshal(shadow.DeltaEvent{State: delta, Version: record.Version})
		if err == nil {
			a.publisher.PublishMessageQ1(topics.UpdateDelta(), payload)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
