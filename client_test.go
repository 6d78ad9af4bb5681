package rawf

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V-Play-Games/RAWF/route"
	"github.com/V-Play-Games/RAWF/work"
)

func Test_NewClient_defaults(t *testing.T) {
	c := NewClient("https://example.test", "test-agent/1.0")
	require.NotNil(t, c)
	assert.Equal(t, 10*time.Second, c.cfg.timeout)
	assert.Equal(t, "https://example.test/", c.cfg.baseUrl)
}

func Test_NewClient_everyFieldInitialized(t *testing.T) {
	c := NewClient("https://example.test", "test-agent/1.0")
	values := reflect.ValueOf(*c)
	types := reflect.TypeOf(*c)
	for i := 0; i < values.NumField(); i++ {
		field := values.Field(i)
		name := types.Field(i).Name
		switch field.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
			if field.IsNil() {
				assert.Fail(t, fmt.Sprintf("%s is not initialized", name))
			}
		}
	}
}

func Test_NewClient_panicsWithoutBaseUrl(t *testing.T) {
	assert.Panics(t, func() { NewClient("", "test-agent/1.0") })
}

func Test_NewClient_panicsWithoutUserAgent(t *testing.T) {
	assert.Panics(t, func() { NewClient("https://example.test", "") })
}

func Test_Client_Do_completesAgainstFakeServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"pong":true}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-agent/1.0")
	cr, err := route.Get("ping", false).Compile()
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), cr, nil, "", nil).Complete()
	require.NoError(t, err)
	assert.True(t, resp.IsOk())
}

func Test_Client_CancelAll(t *testing.T) {
	c := NewClient("https://example.test", "test-agent/1.0")
	cancelled, err := c.CancelAll()
	require.NoError(t, err)
	assert.Equal(t, 0, cancelled)
}

func Test_Client_Do_cancelBeforeDispatchFailsWithCancelled(t *testing.T) {
	c := NewClient("https://example.test", "test-agent/1.0")
	cr, err := route.Get("ping", false).Compile()
	require.NoError(t, err)

	action := c.Do(context.Background(), cr, nil, "", nil)
	action.Cancel()

	_, err = action.Complete()
	require.Error(t, err)
}

func Test_Client_Do_priorityExemptsFromCancelAll(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	var startedOnce sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-agent/1.0")
	cr, err := route.Get("ping", false).Compile()
	require.NoError(t, err)

	// Saturate the bucket so the next two actions land in the FIFO rather
	// than dispatching immediately. Waiting for the handler to actually
	// start serializes this against the other two actions' own async
	// Enqueue calls, which otherwise race against this one.
	blocker := c.Do(context.Background(), cr, nil, "", nil)
	blockerDone := make(chan struct{})
	blocker.Queue(func(*work.RestResponse) { close(blockerDone) }, func(error) { close(blockerDone) })
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocker never reached the server")
	}

	normal := c.Do(context.Background(), cr, nil, "", nil)
	normalDone := make(chan error, 1)
	normal.Queue(func(*work.RestResponse) { normalDone <- nil }, func(err error) { normalDone <- err })

	priority := c.Do(context.Background(), cr, nil, "", nil).Priority()
	priorityDone := make(chan error, 1)
	priority.Queue(func(*work.RestResponse) { priorityDone <- nil }, func(err error) { priorityDone <- err })

	// normal and priority each enqueue on their own goroutine; poll until
	// CancelAll actually observes the cancellable one queued, rather than
	// racing a single call against that enqueue.
	var cancelled int
	require.Eventually(t, func() bool {
		var cancelErr error
		cancelled, cancelErr = c.CancelAll()
		require.NoError(t, cancelErr)
		return cancelled == 1
	}, 2*time.Second, 5*time.Millisecond)

	close(block)

	select {
	case err := <-normalDone:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("normal action never completed")
	}

	select {
	case err := <-priorityDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("priority action never completed")
	}
}

type fakeTransport struct{}

func (fakeTransport) RoundTrip(_ *http.Request) (*http.Response, error) { return nil, nil }

var _ http.RoundTripper = fakeTransport{}
