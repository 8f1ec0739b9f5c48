package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botte/botte-service/internal/attrvalue"
	"github.com/botte/botte-service/internal/tasks"
	"github.com/botte/botte-service/internal/telegram"
)

const chatID = "2137"

type fakeSender struct {
	sent   []string
	failOn string
}

func (f *fakeSender) SendMessage(_ context.Context, chat, text string) (*telegram.Message, error) {
	if chat != chatID {
		return nil, errors.New("wrong chat")
	}
	if text == f.failOn {
		return nil, &telegram.APIError{Method: "sendMessage", Code: 502, Description: "Bad Gateway"}
	}
	f.sent = append(f.sent, text)
	raw := json.RawMessage(`{"message_id":` + strconv.Itoa(len(f.sent)) + `,"text":` + strconv.Quote(text) + `}`)
	return &telegram.Message{Message: telegram.ReceivedMessage{MessageID: len(f.sent), Text: text}, Raw: raw}, nil
}

type memoryGuard struct {
	claimed  map[ksuid.KSUID]bool
	released []ksuid.KSUID
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{claimed: map[ksuid.KSUID]bool{}}
}

func (g *memoryGuard) Claim(_ context.Context, task *tasks.BotteMessageTask) (bool, error) {
	if g.claimed[task.KSUID] {
		return false, nil
	}
	g.claimed[task.KSUID] = true
	return true, nil
}

func (g *memoryGuard) Release(_ context.Context, task *tasks.BotteMessageTask) error {
	delete(g.claimed, task.KSUID)
	g.released = append(g.released, task.KSUID)
	return nil
}

func taskAt(t *testing.T, text string, at time.Time) *tasks.BotteMessageTask {
	t.Helper()
	id, err := ksuid.NewRandomWithTime(at)
	require.NoError(t, err)
	return tasks.New(tasks.NewTaskInput{Text: text, SenderApp: "BOTTE_RELAY_TEST", KSUID: id})
}

func eventOf(t *testing.T, batch ...*tasks.BotteMessageTask) tasks.Event {
	t.Helper()
	event := tasks.Event{Records: []json.RawMessage{}}
	for _, task := range batch {
		item, err := task.ToItem()
		require.NoError(t, err)
		image, err := attrvalue.MarshalMap(item)
		require.NoError(t, err)
		raw, err := json.Marshal(tasks.Record{EventName: tasks.EventInsert, Change: tasks.StreamRecord{NewImage: image}})
		require.NoError(t, err)
		event.Records = append(event.Records, raw)
	}
	return event
}

func TestSendText(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, chatID, nil, nil)

	msg, err := r.SendText(context.Background(), EntrypointHTTP, "BOTTE_TEST", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Text)
	assert.Equal(t, []string{"Hello"}, sender.sent)

	sender.failOn = "boom"
	_, err = r.SendText(context.Background(), EntrypointHTTP, "BOTTE_TEST", "boom")
	var apiErr *telegram.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestInvoke(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, chatID, nil, nil)
	ctx := context.Background()

	t.Run("text required", func(t *testing.T) {
		for _, payload := range []map[string]any{{}, {"text": ""}, {"text": 42}} {
			resp, err := r.Invoke(ctx, payload)
			require.NoError(t, err)
			assert.Equal(t, InvokeResponse{StatusCode: http.StatusBadRequest, Body: "Payload parameter 'text' required"}, resp)
		}
		assert.Empty(t, sender.sent)
	})

	t.Run("sends", func(t *testing.T) {
		resp, err := r.Invoke(ctx, map[string]any{"text": "Hello", "sender_app": "BOTTE_INVOKE_TEST"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.JSONEq(t, `{"statusCode":200,"body":{"message_id":1,"text":"Hello"}}`, string(data))
	})
}

func TestHandleStreamEventSortsByKSUID(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, chatID, newMemoryGuard(), nil)

	base := time.Now().Add(-time.Minute)
	first := taskAt(t, "first", base)
	second := taskAt(t, "second", base.Add(time.Second))
	third := taskAt(t, "third", base.Add(2*time.Second))

	require.NoError(t, r.HandleStreamEvent(context.Background(), eventOf(t, third, first, second)))
	assert.Equal(t, []string{"first", "second", "third"}, sender.sent)
}

func TestHandleStreamEventInvalidBatchSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, chatID, nil, nil)

	event := eventOf(t, taskAt(t, "ok", time.Now()))
	event.Records = append(event.Records, json.RawMessage(`{"eventName":"INSERT","dynamodb":{"NewImage":{"PK":{"S":"XXX"}}}}`))

	err := r.HandleStreamEvent(context.Background(), event)
	require.Error(t, err)
	assert.True(t, tasks.IsValidationError(err))
	assert.Empty(t, sender.sent)

	err = r.HandleStreamEvent(context.Background(), tasks.Event{})
	assert.True(t, tasks.IsValidationError(err))
}

func TestHandleStreamEventRedelivery(t *testing.T) {
	sender := &fakeSender{}
	guard := newMemoryGuard()
	r := New(sender, chatID, guard, nil)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	one := taskAt(t, "one", base)
	boom := taskAt(t, "boom", base.Add(time.Second))
	three := taskAt(t, "three", base.Add(2*time.Second))
	event := eventOf(t, one, boom, three)

	sender.failOn = "boom"
	err := r.HandleStreamEvent(ctx, event)
	require.Error(t, err)
	assert.False(t, tasks.IsValidationError(err))
	assert.Equal(t, []string{"one"}, sender.sent)
	assert.Equal(t, []ksuid.KSUID{boom.KSUID}, guard.released)

	// The redelivered batch skips what already went out.
	sender.failOn = ""
	require.NoError(t, r.HandleStreamEvent(ctx, event))
	assert.Equal(t, []string{"one", "boom", "three"}, sender.sent)
}
