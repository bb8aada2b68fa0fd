// Package httpserver embeds an HTTP server whose routes are script functions.
//
// Requests are accepted on server goroutines and parked until the next Think, which runs the script handlers on the
// control thread and hands the responses back. A request not answered within the response timeout gets 504.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"go.uber.org/zap"
)

const Name = "httpserver"

const (
	DefaultResponseTimeout = 10 * time.Second
	shutdownTimeout        = 5 * time.Second
	readHeaderTimeout      = 5 * time.Second
	maxBody                = 1 << 20
)

var ErrNotRunning = errors.New("http server is not running")

var methods = map[string]string{
	"Get":     http.MethodGet,
	"Post":    http.MethodPost,
	"Put":     http.MethodPut,
	"Patch":   http.MethodPatch,
	"Delete":  http.MethodDelete,
	"Options": http.MethodOptions,
}

type (
	Module struct {
		registry.Base
		routes   map[string]bridge.Callable //method and path
		pending  []*request
		server   *http.Server
		listener net.Listener
		served   chan struct{}
		timeout  time.Duration
		log      *zap.Logger
		mu       sync.Mutex
	}
	request struct {
		handler bridge.Callable
		fields  map[string]any
		done    chan response
	}
	response struct {
		status      int
		body        string
		contentType string
		headers     map[string]string
		redirect    string
	}
)

func New() *Module {
	return &Module{routes: map[string]bridge.Callable{}, timeout: DefaultResponseTimeout, log: zap.NewNop()}
}

func (m *Module) Descriptor() registry.Descriptor {
	return registry.Descriptor{Name: Name, Compatibility: platform.All}
}

func (m *Module) BindNative(env *registry.Env) error {
	m.log = env.Logger()
	return nil
}

func (m *Module) BindScript(env *registry.Env) error {
	s := env.Surface()
	for name, f := range m.functions() {
		if err := s.PublishFunction(Name, name, f); err != nil {
			return err
		}
	}
	return nil
}

// UnbindScript stops the server: its routes belong to the script state being torn down.
func (m *Module) UnbindScript(env *registry.Env) (err error) {
	err = m.Stop()
	s := env.Surface()
	for name := range m.functions() {
		err = errors.Join(err, s.Remove(Name, name))
	}
	m.mu.Lock()
	clear(m.routes)
	m.mu.Unlock()
	return
}

// Think answers the requests parked since the last tick.
func (m *Module) Think(_ *registry.Env, _ bool) error {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, r := range batch {
		r.done <- m.answer(r)
	}
	return nil
}

func (m *Module) answer(r *request) response {
	res, err := r.handler(r.fields)
	if err != nil {
		m.log.Warn("route failed", zap.Any("path", r.fields["path"]), zap.Error(err))
		return response{status: http.StatusInternalServerError, body: err.Error()}
	}
	return responseOf(res)
}

// responseOf reads a handler result: a body string, or a table with body, type, status, headers and redirect.
func responseOf(res []any) response {
	out := response{status: http.StatusOK, contentType: "text/plain"}
	if len(res) == 0 {
		return out
	}
	switch v := res[0].(type) {
	case string:
		out.body = v
		if len(res) > 1 {
			if code, err := (bridge.Args(res)).Int(1); err == nil {
				out.status = int(code)
			}
		}
	case map[string]any:
		a := bridge.Args{v["body"], v["type"], v["status"], v["redirect"]}
		out.body, _ = a.String(0)
		if t, err := a.String(1); err == nil {
			out.contentType = t
		}
		if code, err := a.Int(2); err == nil {
			out.status = int(code)
		}
		if to, err := a.String(3); err == nil {
			out.redirect = to
			if out.status == http.StatusOK {
				out.status = http.StatusFound
			}
		}
		if h, ok := v["headers"].(map[string]any); ok {
			out.headers = map[string]string{}
			for k, x := range h {
				out.headers[k] = fmt.Sprint(x)
			}
		}
	default:
		out.body = fmt.Sprint(v)
	}
	return out
}

func (m *Module) functions() map[string]bridge.Function {
	f := map[string]bridge.Function{
		"Start": func(a bridge.Args) ([]any, error) {
			addr, err := a.String(0)
			if err != nil {
				return nil, err
			}
			port, err := a.Int(1)
			if err != nil {
				return nil, err
			}
			bound, err := m.Start(net.JoinHostPort(addr, strconv.FormatInt(port, 10)))
			if err != nil {
				return nil, err
			}
			return []any{bound}, nil
		},
		"Stop": func(bridge.Args) ([]any, error) {
			return nil, m.Stop()
		},
		"IsRunning": func(bridge.Args) ([]any, error) {
			return []any{m.Running()}, nil
		},
		"SetResponseTimeout": func(a bridge.Args) ([]any, error) {
			sec, err := a.Number(0)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			m.timeout = time.Duration(sec * float64(time.Second))
			m.mu.Unlock()
			return nil, nil
		},
	}
	for name, method := range methods {
		f[name] = func(a bridge.Args) ([]any, error) {
			path, err := a.String(0)
			if err != nil {
				return nil, err
			}
			h, err := a.Callable(1)
			if err != nil {
				return nil, err
			}
			m.Route(method, path, h)
			return nil, nil
		}
	}
	return f
}

// Route registers or replaces the handler of method and path.
func (m *Module) Route(method, path string, h bridge.Callable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[method+" "+path] = h
}

// Start listens on addr and serves in the background, restarting a running server. The bound address is returned.
func (m *Module) Start(addr string) (string, error) {
	if err := m.Stop(); err != nil {
		return "", err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: m, ReadHeaderTimeout: readHeaderTimeout}
	served := make(chan struct{})
	m.mu.Lock()
	m.server, m.listener, m.served = srv, ln, served
	m.mu.Unlock()
	go func() {
		defer close(served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("http server stopped", zap.Error(err))
		}
	}()
	m.log.Info("http server listening", zap.Stringer("addr", ln.Addr()))
	return ln.Addr().String(), nil
}

// Stop shuts the server down and answers parked requests with 503.
func (m *Module) Stop() error {
	m.mu.Lock()
	srv, served := m.server, m.served
	m.server, m.listener, m.served = nil, nil, nil
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, r := range batch {
		r.done <- response{status: http.StatusServiceUnavailable}
	}
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	<-served
	return nil
}

func (m *Module) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.server != nil
}

// Addr is the bound address of the running server.
func (m *Module) Addr() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return "", ErrNotRunning
	}
	return m.listener.Addr().String(), nil
}

func (m *Module) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	h, ok := m.routes[req.Method+" "+req.URL.Path]
	timeout, running := m.timeout, m.server != nil
	var r *request
	if ok && running {
		r = &request{handler: h, fields: fields(req, body), done: make(chan response, 1)}
		m.pending = append(m.pending, r)
	}
	m.mu.Unlock()
	switch {
	case !ok:
		http.NotFound(w, req)
		return
	case !running:
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var res response
	select {
	case res = <-r.done:
	case <-timer.C:
		m.drop(r)
		res = response{status: http.StatusGatewayTimeout}
	case <-req.Context().Done():
		m.drop(r)
		return
	}
	for k, v := range res.headers {
		w.Header().Set(k, v)
	}
	if res.redirect != "" {
		http.Redirect(w, req, res.redirect, res.status)
		return
	}
	if res.contentType != "" {
		w.Header().Set("Content-Type", res.contentType)
	}
	w.WriteHeader(res.status)
	_, _ = io.WriteString(w, res.body)
}

// drop removes an abandoned request that Think has not taken yet.
func (m *Module) drop(r *request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.pending {
		if x == r {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

func fields(req *http.Request, body []byte) map[string]any {
	headers := map[string]any{}
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}
	params := map[string]any{}
	for k := range req.URL.Query() {
		params[k] = req.URL.Query().Get(k)
	}
	return map[string]any{
		"method":      req.Method,
		"path":        req.URL.Path,
		"body":        string(body),
		"remote_addr": req.RemoteAddr,
		"headers":     headers,
		"params":      params,
	}
}
