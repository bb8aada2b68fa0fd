package httpserver

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/holyhook/bridge"
	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/davecgh/go-spew/spew"
)

type result struct {
	res  *http.Response
	body string
	err  error
}

// fetch runs do in the background and ticks the registry until it returns.
func fetch(t *testing.T, reg *registry.Registry, do func() (*http.Response, error)) result {
	t.Helper()
	done := make(chan result, 1)
	go func() {
		res, err := do()
		if err != nil {
			done <- result{err: err}
			return
		}
		defer fn.IgnoreClose(res.Body)
		b, err := io.ReadAll(res.Body)
		done <- result{res: res, body: string(b), err: err}
	}()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-done:
			if r.err != nil {
				t.Fatal(r.err)
			}
			return r
		case <-deadline:
			t.Fatal("request not answered")
		default:
			reg.Think(false)
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func load(t *testing.T) (*registry.Registry, *bridge.LuaSurface, *Module, string) {
	t.Helper()
	s := fn.Panic1(bridge.NewLuaSurface())
	m := New()
	reg := fn.Panic1(registry.New(registry.Options{Platform: platform.Detect(), Surface: s}, m))
	reg.LoadAll()
	if fn.Panic1(reg.Status(Name)).State != registry.Unloaded {
		t.Fatal("enabled by default")
	}
	fn.Panic(reg.SetEnabled(Name, true))
	fn.Panic(s.DoString(`
		addr = httpserver.Start("127.0.0.1", 0)
		httpserver.Get("/hello", function(req) return "hi " .. (req.params.name or "nobody") end)
		httpserver.Post("/echo", function(req)
			return {body = req.body, status = 201, type = "application/json", headers = {["X-Method"] = req.method}}
		end)
		httpserver.Get("/boom", function(req) error("broken route") end)
		httpserver.Get("/away", function(req) return {redirect = "/hello"} end)
	`))
	addr := fn.Panic1(s.Eval(`addr`)).(string)
	t.Cleanup(reg.UnloadAll)
	return reg, s, m, "http://" + addr
}

func TestRoutesAnsweredOnThink(t *testing.T) {
	reg, s, _, base := load(t)
	if v := fn.Panic1(s.Eval(`httpserver.IsRunning()`)); v != true {
		t.Fatal(v)
	}
	r := fetch(t, reg, func() (*http.Response, error) { return http.Get(base + "/hello?name=bob") })
	if r.res.StatusCode != http.StatusOK || r.body != "hi bob" || !strings.HasPrefix(r.res.Header.Get("Content-Type"), "text/plain") {
		t.Fatal(r.res.StatusCode, r.body)
	}
	r = fetch(t, reg, func() (*http.Response, error) {
		return http.Post(base+"/echo", "application/json", strings.NewReader(`{"a":1}`))
	})
	if r.res.StatusCode != http.StatusCreated || r.body != `{"a":1}` || r.res.Header.Get("X-Method") != http.MethodPost ||
		r.res.Header.Get("Content-Type") != "application/json" {
		t.Fatal(spew.Sdump(r.res.Header), r.body)
	}
	r = fetch(t, reg, func() (*http.Response, error) { return http.Get(base + "/boom") })
	if r.res.StatusCode != http.StatusInternalServerError || !strings.Contains(r.body, "broken route") {
		t.Fatal(r.res.StatusCode, r.body)
	}
	r = fetch(t, reg, func() (*http.Response, error) { return http.Get(base + "/away") })
	if r.res.StatusCode != http.StatusOK || r.body != "hi nobody" {
		t.Fatal("redirect not followed", r.res.StatusCode, r.body)
	}
	r = fetch(t, reg, func() (*http.Response, error) { return http.Get(base + "/missing") })
	if r.res.StatusCode != http.StatusNotFound {
		t.Fatal(r.res.StatusCode)
	}
}

func TestUnansweredRequests(t *testing.T) {
	reg, s, m, base := load(t)
	fn.Panic(s.DoString(`httpserver.SetResponseTimeout(0.05)`))
	res := fn.Panic1(http.Get(base + "/hello"))
	fn.IgnoreClose(res.Body)
	if res.StatusCode != http.StatusGatewayTimeout {
		t.Fatal(res.StatusCode)
	}
	fn.Panic(s.DoString(`httpserver.SetResponseTimeout(5)`))
	got := make(chan int, 1)
	go func() {
		res, err := http.Get(base + "/hello")
		if err != nil {
			got <- 0
			return
		}
		fn.IgnoreClose(res.Body)
		got <- res.StatusCode
	}()
	for i := 0; !parked(m); i++ {
		if i == 2500 {
			t.Fatal("request never parked")
		}
		time.Sleep(2 * time.Millisecond)
	}
	fn.Panic(reg.SetEnabled(Name, false))
	if code := <-got; code != http.StatusServiceUnavailable {
		t.Fatal(code)
	}
	if m.Running() {
		t.Fatal("still running after unload")
	}
	if _, err := m.Addr(); err != ErrNotRunning {
		t.Fatal(err)
	}
}

func parked(m *Module) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) > 0
}

func TestResponseOf(t *testing.T) {
	cases := []struct {
		in   []any
		want response
	}{
		{nil, response{status: 200, contentType: "text/plain"}},
		{[]any{"ok", int64(418)}, response{status: 418, body: "ok", contentType: "text/plain"}},
		{[]any{int64(5)}, response{status: 200, body: "5", contentType: "text/plain"}},
		{[]any{map[string]any{"redirect": "/x"}}, response{status: 302, contentType: "text/plain", redirect: "/x"}},
		{[]any{map[string]any{"body": "b", "status": int64(404), "type": "text/html", "headers": map[string]any{"A": int64(1)}}},
			response{status: 404, body: "b", contentType: "text/html", headers: map[string]string{"A": "1"}}},
	}
	for _, c := range cases {
		if got := responseOf(c.in); spew.Sdump(got) != spew.Sdump(c.want) {
			t.Errorf("%v\n%s", c.in, spew.Sdump(got))
		}
	}
}
