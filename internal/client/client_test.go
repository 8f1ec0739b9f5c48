package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botte/botte-service/config"
	"github.com/botte/botte-service/internal/http/ratelimit"
	"github.com/botte/botte-service/internal/relay"
	"github.com/botte/botte-service/internal/taskqueue"
	"github.com/botte/botte-service/internal/tasks"
)

func fastLimits() ratelimit.Config {
	return ratelimit.Config{MaxRetries: 1, InitialBackoffMs: 1, MaxBackoffMs: 2}
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","timestamp":"2026-10-18T10:00:00Z"}`))
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "s3cret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"appName":"Botte BE","appVersion":"1.0.0","runtimeVersion":"go1.25"}`))
	})
	mux.HandleFunc("/unhealth", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BOTTE_CLI", req["sender_app"])
		w.Write([]byte(`{"message_id":42,"chat":{"id":1,"type":"private"},"text":"` + req["text"] + `"}`))
	})
	mux.HandleFunc("/invoke/message", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"statusCode":400,"body":"Payload parameter 'text' required"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newHTTPClient(srv *httptest.Server, token string) *HTTPClient {
	return NewHTTPClient(
		config.ClientConfig{BaseURL: srv.URL + "/", SenderApp: "BOTTE_CLI"},
		config.StaticSecret(token),
		fastLimits(),
		time.Second,
	)
}

func TestHTTPClient(t *testing.T) {
	srv := newAPI(t)
	c := newHTTPClient(srv, "s3cret")
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Botte BE", v.AppName)

	require.NoError(t, c.Unhealth(ctx))

	msg, err := c.SendMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 42, msg.MessageID)
	assert.Equal(t, "hello", msg.Text)
	assert.NotEmpty(t, msg.Raw)
}

func TestHTTPClientErrors(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()

	_, err := newHTTPClient(srv, "wrong").Version(ctx)
	assert.ErrorIs(t, err, ErrAuth)

	c := newHTTPClient(srv, "s3cret")
	c.baseURL = srv.URL + "/nope"
	_, err = c.Health(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnhealthNotFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := newHTTPClient(srv, "s3cret").Unhealth(context.Background())
	var notErr *NotError500Error
	require.ErrorAs(t, err, &notErr)
	assert.Equal(t, http.StatusOK, notErr.Status)
}

func TestInvokeClientOverHTTP(t *testing.T) {
	srv := newAPI(t)
	c := NewInvokeClient(newHTTPClient(srv, "s3cret"), "BOTTE_CLI")

	_, err := c.SendMessage(context.Background(), "")
	var invokeErr *InvokeError
	require.ErrorAs(t, err, &invokeErr)
	assert.Equal(t, http.StatusBadRequest, invokeErr.StatusCode)
}

type fakeInvoker struct {
	payload map[string]any
}

func (f *fakeInvoker) Invoke(_ context.Context, payload map[string]any) (relay.InvokeResponse, error) {
	f.payload = payload
	return relay.InvokeResponse{StatusCode: http.StatusOK, Body: "done"}, nil
}

func TestInvokeClient(t *testing.T) {
	inv := &fakeInvoker{}
	c := NewInvokeClient(inv, "BOTTE_CLI")

	body, err := c.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", body)
	assert.Equal(t, map[string]any{"text": "hi", "sender_app": "BOTTE_CLI"}, inv.payload)
}

type fakeWriter struct {
	tasks []*tasks.BotteMessageTask
	err   error
}

func (f *fakeWriter) WriteTask(_ context.Context, task *tasks.BotteMessageTask) taskqueue.WriteTaskResult {
	if f.err != nil {
		return taskqueue.WriteTaskResult{Err: f.err}
	}
	item, err := task.ToItem()
	if err != nil {
		return taskqueue.WriteTaskResult{Err: err}
	}
	f.tasks = append(f.tasks, task)
	return taskqueue.WriteTaskResult{PK: item[tasks.AttrPK].(string), SK: item[tasks.AttrSK].(string)}
}

func TestQueueClient(t *testing.T) {
	w := &fakeWriter{}
	c := NewQueueClient(w, "BOTTE_CLI", nil)
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	task, err := c.SendMessage(context.Background(), QueueMessage{Text: "queued"})
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), task.ExpirationTs)
	assert.Equal(t, "BOTTE_CLI", task.SenderApp)
	assert.Equal(t, "BOTTE_MESSAGE#"+task.KSUID.String(), task.PartitionKey())
	require.Len(t, w.tasks, 1)

	task, err = c.SendMessage(context.Background(), QueueMessage{Text: "fifo", DoProcessFIFO: true, FIFOGroupID: "g1", ExpirationTs: now.Unix() + 60})
	require.NoError(t, err)
	assert.Equal(t, "BOTTE_MESSAGE#g1", task.PartitionKey())
	assert.Equal(t, now.Unix()+60, task.ExpirationTs)
}

func TestQueueClientErrors(t *testing.T) {
	c := NewQueueClient(&fakeWriter{}, "BOTTE_CLI", nil)
	_, err := c.SendMessage(context.Background(), QueueMessage{Text: ""})
	assert.True(t, tasks.IsValidationError(err))

	c = NewQueueClient(&fakeWriter{err: taskqueue.ErrPrimaryKeyConstraint}, "BOTTE_CLI", nil)
	_, err = c.SendMessage(context.Background(), QueueMessage{Text: "dup"})
	assert.True(t, errors.Is(err, taskqueue.ErrPrimaryKeyConstraint))
}

func TestWriteResult(t *testing.T) {
	assert.Equal(t, "ok", writeResult(nil))
	assert.Equal(t, "duplicate", writeResult(taskqueue.ErrPrimaryKeyConstraint))
	assert.Equal(t, "invalid", writeResult(&tasks.ValidationError{Msg: "x"}))
	assert.Equal(t, "error", writeResult(errors.New("x")))
}
