package appointment

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/hackgods/clinic-appointment-gateway/internal/transport"
)

type call struct {
	method string
	path   string
	query  url.Values
	body   any
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   []call
	handler func(c call) (*transport.Response, error)
}

func newFakeTransport(handler func(c call) (*transport.Response, error)) *fakeTransport {
	return &fakeTransport{handler: handler}
}

func (f *fakeTransport) record(c call) (*transport.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return ok(`[]`)
	}
	return h(c)
}

func (f *fakeTransport) Get(_ context.Context, path string, query url.Values) (*transport.Response, error) {
	return f.record(call{method: "GET", path: path, query: query})
}

func (f *fakeTransport) Post(_ context.Context, path string, body any) (*transport.Response, error) {
	return f.record(call{method: "POST", path: path, body: body})
}

func (f *fakeTransport) Put(_ context.Context, path string, body any) (*transport.Response, error) {
	return f.record(call{method: "PUT", path: path, body: body})
}

func (f *fakeTransport) Delete(_ context.Context, path string) (*transport.Response, error) {
	return f.record(call{method: "DELETE", path: path})
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func ok(body string) (*transport.Response, error) {
	return &transport.Response{Status: 200, Data: []byte(body)}, nil
}

func httpError(status int, body string) error {
	return &transport.Error{
		Method:   "GET",
		URL:      "http://clinic.test/appointments",
		Response: &transport.Response{Status: status, Data: []byte(body)},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func staticClinic(id string) *ClinicResolver {
	return NewClinicResolver(nil, ClinicSourceFunc(func(context.Context) (string, error) {
		return id, nil
	}))
}
