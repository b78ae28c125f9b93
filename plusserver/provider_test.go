package plusserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

const (
	testUsername = "user"
	testPassword = "secret"
	testHandle   = "d41d8cd98f00b204e9800998ecf8427e"
)

// fakeProvider is an httptest stand-in for the put and state endpoints.
type fakeProvider struct {
	t      *testing.T
	server *httptest.Server

	mu     sync.Mutex
	puts   []url.Values
	states []url.Values
	auths  []string

	putFn   func(w http.ResponseWriter, r *http.Request)
	stateFn func(w http.ResponseWriter, r *http.Request)
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	f := &fakeProvider{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/put.php", func(w http.ResponseWriter, r *http.Request) {
		f.record(r, &f.puts)
		if f.putFn != nil {
			f.putFn(w, r)
			return
		}
		_, _ = w.Write([]byte("REQUEST OK\nhandle = " + testHandle))
	})
	mux.HandleFunc("/sms-state.php", func(w http.ResponseWriter, r *http.Request) {
		f.record(r, &f.states)
		if f.stateFn != nil {
			f.stateFn(w, r)
			return
		}
		_, _ = w.Write([]byte("REQUEST OK\nstate = arrived"))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeProvider) record(r *http.Request, into *[]url.Values) {
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("ParseForm() error = %v", err)
	}
	username, _, _ := r.BasicAuth()

	f.mu.Lock()
	defer f.mu.Unlock()
	*into = append(*into, r.PostForm)
	f.auths = append(f.auths, username)
}

// settings points a Config at the fake with valid credentials.
func (f *fakeProvider) settings() []Setting {
	return []Setting{
		SetCredentials(testUsername, testPassword),
		SetPutURL(f.server.URL + "/put.php"),
		SetStateURL(f.server.URL + "/sms-state.php"),
	}
}

func (f *fakeProvider) config(extra ...Setting) *Config {
	return NewConfig(append(f.settings(), extra...)...)
}

func (f *fakeProvider) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func (f *fakeProvider) stateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func (f *fakeProvider) lastPut() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.puts) == 0 {
		return nil
	}
	return f.puts[len(f.puts)-1]
}

func (f *fakeProvider) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.auths) == 0 {
		return ""
	}
	return f.auths[len(f.auths)-1]
}

// fakeClock drives the wait loop without real sleeping.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
	return nil
}

func newTestClient(cfg *Config, clock *fakeClock, opts ...ClientOption) *Client {
	c := NewClient(cfg, opts...)
	if clock != nil {
		c.now = clock.Now
		c.sleep = clock.Sleep
	}
	return c
}
