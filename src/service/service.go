package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stagecraft-robotics/lockstep/src/bus"
	"github.com/stagecraft-robotics/lockstep/src/node"
	"github.com/stagecraft-robotics/lockstep/src/telemetry"
)

// NodeInfo is the /nodes representation of one attached node.
type NodeInfo struct {
	Name    string `json:"name"`
	Address uint16 `json:"address"`
	Ports   []byte `json:"ports"`
}

// Service exposes the host's state over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	pipe        *bus.Pipeline
	registry    *node.Registry
	store       node.AddressStore
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, pipe *bus.Pipeline, registry *node.Registry, store node.AddressStore, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		pipe:        pipe,
		registry:    registry,
		store:       store,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServeMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServeMux. In which case, the handlers will
// be accessible from both servers. This is usefull when lockstep is used
// in-memory and expected to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering lockstep API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/nodes", s.makeHandler(s.GetNodes))
	http.HandleFunc("/addresses", s.makeHandler(s.GetAddresses))
	http.Handle("/metrics", telemetry.Handler())
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary
// to call Serve when another server has already been started with the
// DefaultServeMux and the same address:port combination; the handlers have
// already been registered when the service was instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving lockstep API")

	// Use the DefaultServeMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats returns the pipeline queue depths.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pipe.Stats()
	stats["nodes"] = strconv.Itoa(s.registry.Len())

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetNodes returns the attached nodes with their addresses and bound ports.
func (s *Service) GetNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.registry.Nodes()

	infos := make([]NodeInfo, len(nodes))
	for i, n := range nodes {
		infos[i] = NodeInfo{
			Name:    n.Name(),
			Address: n.Addr(),
			Ports:   n.Ports(),
		}
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(infos)
}

// GetAddresses returns the full persisted address mapping, including entries
// for nodes that are not currently attached.
func (s *Service) GetAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.store.All()
	if err != nil {
		s.logger.WithError(err).Error("Reading address store")

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(addrs)
}
