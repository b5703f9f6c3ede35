package runtime

import (
	"fmt"
	"net/http"
	"sync"

	loggingpkg "github.com/exclave-io/exclave/internal/runtime/logging"
)

// httpServerSet owns the container's plain HTTP listeners, one per
// port. A server starts lazily when its port first gets a handler and
// runs for the life of the process.
type httpServerSet struct {
	logger loggingpkg.ServiceLogger

	mu    sync.Mutex
	muxes map[int]*http.ServeMux
}

func newHTTPServerSet(logger loggingpkg.ServiceLogger) *httpServerSet {
	return &httpServerSet{
		logger: logger,
		muxes:  make(map[int]*http.ServeMux),
	}
}

// register mounts handler at pattern on the server for port. ServeMux
// accepts handlers concurrently with serving, so registrations after
// the listener is up are fine.
func (h *httpServerSet) register(port int, pattern string, handler http.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mux, ok := h.muxes[port]
	if !ok {
		mux = http.NewServeMux()
		h.muxes[port] = mux

		addr := fmt.Sprintf(":%d", port)
		h.logger.Info("starting http server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				h.logger.Error("http server stopped", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}

	mux.Handle(pattern, handler)
}

// RegisterHTTPHandler mounts handler at pattern on an HTTP server for
// port, starting the server on first use. The container mounts the
// metrics endpoint this way; anything else can share the port.
func (c *Container) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	c.servers.register(port, pattern, handler)
}
