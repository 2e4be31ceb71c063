// Package sstitest provides test doubles for the detection core's
// collaborator interfaces, grounded on the teacher SDK's
// pkg/testutil/mocks.go pattern: a struct with a *Func field per method,
// call recording under a mutex, and a sane zero-value default behavior.
package sstitest

import (
	"context"
	"sync"

	"github.com/sstimap/sstimap-go/pkg/channel"
)

// MockChannel is a test double for channel.Channel. ReqFunc decides the
// response for every Req call; when nil, Req returns an empty body and no
// error. Every request is recorded in Requests for assertions.
type MockChannel struct {
	ReqFunc      func(ctx context.Context, injection string) (string, error)
	DetectedFunc func(kind string, detail map[string]any)

	TargetURL string
	RunArgs   channel.Args

	mu        sync.Mutex
	data      *channel.Data
	Requests  []string
	Detections []Detection
}

// Detection records one Detected(...) call.
type Detection struct {
	Kind   string
	Detail map[string]any
}

// NewMockChannel builds a MockChannel with an initialized data store.
func NewMockChannel(args channel.Args) *MockChannel {
	return &MockChannel{
		TargetURL: "http://example.invalid/probe",
		RunArgs:   args,
		data:      channel.NewData(),
	}
}

// Req records injection and delegates to ReqFunc.
func (m *MockChannel) Req(ctx context.Context, injection string) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, injection)
	m.mu.Unlock()

	if m.ReqFunc != nil {
		return m.ReqFunc(ctx, injection)
	}
	return "", nil
}

// URL returns TargetURL.
func (m *MockChannel) URL() string { return m.TargetURL }

// Args returns RunArgs.
func (m *MockChannel) Args() channel.Args { return m.RunArgs }

// Data returns the shared fact store.
func (m *MockChannel) Data() *channel.Data { return m.data }

// Detected records the event and delegates to DetectedFunc, if set.
func (m *MockChannel) Detected(kind string, detail map[string]any) {
	m.mu.Lock()
	m.Detections = append(m.Detections, Detection{Kind: kind, Detail: detail})
	m.mu.Unlock()

	if m.DetectedFunc != nil {
		m.DetectedFunc(kind, detail)
	}
}

// RequestCount returns the number of Req calls made so far.
func (m *MockChannel) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent injection string, or "" if none.
func (m *MockChannel) LastRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return ""
	}
	return m.Requests[len(m.Requests)-1]
}
