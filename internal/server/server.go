// Package server serves the output tree during watch mode and pushes live
// reload notifications to connected browsers.
package server

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/vinceanalytics/pave/internal/failure"
	"github.com/vinceanalytics/pave/internal/log"
	"github.com/vinceanalytics/pave/internal/metrics"
)

const (
	ReloadPath  = "/__pave/livereload"
	ScriptPath  = "/__pave/livereload.js"
	MetricsPath = "/__pave/metrics"
)

//go:embed livereload.js
var script []byte

var tag = []byte(`<script src="` + ScriptPath + `"></script>`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	dir    string
	listen string
	hub    *hub
	ls     net.Listener
	svr    *http.Server
	done   chan error
}

// New returns a server for the output directory dir. Nothing is bound until
// Start.
func New(dir, listen string) *Server {
	return &Server{
		dir:    dir,
		listen: listen,
		hub:    newHub(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ReloadPath, s.reload)
	mux.HandleFunc(ScriptPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(script)
	})
	mux.Handle(MetricsPath, metrics.Handler())
	mux.Handle("/", s.static())
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})(mux)
}

// Start binds the listen address and serves in the background. A bind
// failure is returned as an io failure.
func (s *Server) Start(ctx context.Context) error {
	ls, err := net.Listen("tcp", s.listen)
	if err != nil {
		return failure.IO("listen", s.listen, err)
	}
	s.ls = ls
	s.svr = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s.done = make(chan error, 1)
	go func() {
		err := s.svr.Serve(ls)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	log.Get(ctx).Info().Str("addr", "http://"+s.Addr()).Msg("serving")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ls != nil {
		return s.ls.Addr().String()
	}
	return s.listen
}

// Stop disconnects reload clients and shuts the http server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.close()
	if s.svr == nil {
		return nil
	}
	err := s.svr.Shutdown(ctx)
	if serr := <-s.done; err == nil {
		err = serr
	}
	return err
}

// Reload tells every connected browser to reload. It never blocks.
func (s *Server) Reload(paths ...string) {
	s.hub.broadcast()
	metrics.Reloads.Inc()
}

// Clients returns the number of connected live reload clients.
func (s *Server) Clients() int { return s.hub.len() }

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Get(r.Context()).Debug().Err(err).Msg("live reload upgrade failed")
		return
	}
	c := s.hub.add(conn)
	go c.writeLoop()
	c.readLoop()
	s.hub.remove(c)
}

// static serves files from the output directory. HTML documents get the live
// reload script injected before the closing body tag.
func (s *Server) static() http.Handler {
	root := http.Dir(s.dir)
	files := http.FileServer(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") {
			name = path.Join(name, "index.html")
		}
		if path.Ext(name) != ".html" {
			files.ServeHTTP(w, r)
			return
		}
		f, err := root.Open(name)
		if err != nil {
			files.ServeHTTP(w, r)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		data = Inject(data)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			w.Write(data)
		}
	})
}

// Inject places the live reload script tag before the last closing body tag,
// or at the end of the document when there is none.
func Inject(doc []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if i < 0 {
		return append(doc[:len(doc):len(doc)], tag...)
	}
	o := make([]byte, 0, len(doc)+len(tag))
	o = append(o, doc[:i]...)
	o = append(o, tag...)
	return append(o, doc[i:]...)
}
