// Package tasks defines the BOTTE_MESSAGE task: the envelope that carries one
// outbound message through the durable queue table, its wire mapping and its
// decoding from change-stream records.
package tasks

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// BotteMessageTaskID is the fixed task type discriminator (TaskId) and the
// base of every partition key.
const BotteMessageTaskID = "BOTTE_MESSAGE"

// DefaultExpiration is added to the identifier timestamp when no explicit
// expiration is given.
const DefaultExpiration = time.Hour

// maxExpirationTs is 9999-12-31T23:59:59Z, the last representable UTC time.
const maxExpirationTs = 253402300799

// Item is the wire mapping of a task, as written to the queue table.
type Item map[string]any

// Wire mapping attribute names.
const (
	AttrPK           = "PK"
	AttrSK           = "SK"
	AttrTaskID       = "TaskId"
	AttrSenderApp    = "SenderApp"
	AttrPayload      = "Payload"
	AttrExpirationTs = "ExpirationTs"
	payloadText      = "text"
)

// BotteMessageTask is one message on its way to the chat. It is not mutated
// after construction.
type BotteMessageTask struct {
	Text      string
	SenderApp string

	// DoProcessFIFO and FIFOGroupID only shape the partition key; they are
	// not recovered when a task is decoded from a record.
	DoProcessFIFO bool
	FIFOGroupID   string

	KSUID ksuid.KSUID

	// ExpirationTs is the TTL of the queue row, Unix seconds UTC. Deletion
	// by the sweeper is best-effort and may lag.
	ExpirationTs int64

	canonicalOnce sync.Once
	canonical     string
	canonicalErr  error
}

// NewTaskInput holds the fields of a new task. Zero KSUID and ExpirationTs
// mean "generate".
type NewTaskInput struct {
	Text          string
	SenderApp     string
	DoProcessFIFO bool
	FIFOGroupID   string
	KSUID         ksuid.KSUID
	ExpirationTs  int64
}

// New builds a task. Field validation is deferred to ToItem.
func New(input NewTaskInput) *BotteMessageTask {
	id := input.KSUID
	if id == ksuid.Nil {
		id = NewKSUID()
	}

	expirationTs := input.ExpirationTs
	if expirationTs == 0 {
		expirationTs = id.Time().UTC().Add(DefaultExpiration).Unix()
	}

	return &BotteMessageTask{
		Text:          input.Text,
		SenderApp:     input.SenderApp,
		DoProcessFIFO: input.DoProcessFIFO,
		FIFOGroupID:   input.FIFOGroupID,
		KSUID:         id,
		ExpirationTs:  expirationTs,
	}
}

// PartitionKey returns the PK of the task.
func (t *BotteMessageTask) PartitionKey() string {
	return PartitionKey(t.DoProcessFIFO, t.FIFOGroupID, t.KSUID)
}

// ToItem validates the task and returns its wire mapping.
func (t *BotteMessageTask) ToItem() (Item, error) {
	if t.Text == "" {
		return nil, validationErrorf("text must be a non-empty string: %q", t.Text)
	}
	if t.SenderApp == "" {
		return nil, validationErrorf("SenderApp must be a non-empty string: %q", t.SenderApp)
	}
	if t.KSUID == ksuid.Nil {
		return nil, validationErrorf("ksuid must be KsuidMs: %s", t.KSUID)
	}
	if _, err := ExpirationTime(t.ExpirationTs); err != nil {
		return nil, validationErrorf("ExpirationTs must be int timestamp: %d", t.ExpirationTs)
	}

	return Item{
		AttrPK:        t.PartitionKey(),
		AttrSK:        t.KSUID.String(),
		AttrTaskID:    BotteMessageTaskID,
		AttrSenderApp: t.SenderApp,
		AttrPayload: map[string]any{
			payloadText: t.Text,
		},
		AttrExpirationTs: t.ExpirationTs,
	}, nil
}

// ToJSON returns the item as compact JSON with sorted keys: no spaces after
// "," and ":", and non-ASCII text as raw UTF-8 rather than \uXXXX escapes.
// The bytes are stable for a task but differ from an indented or
// ASCII-escaped encoder's output. The result is computed once per task.
func (t *BotteMessageTask) ToJSON() (string, error) {
	t.canonicalOnce.Do(func() {
		item, err := t.ToItem()
		if err != nil {
			t.canonicalErr = err
			return
		}
		t.canonical, t.canonicalErr = canonicalJSON(item)
	})
	return t.canonical, t.canonicalErr
}

// ExpirationTime converts an ExpirationTs to a UTC time.
func ExpirationTime(ts int64) (time.Time, error) {
	if ts < 0 || ts > maxExpirationTs {
		return time.Time{}, validationErrorf("timestamp out of range: %d", ts)
	}
	return time.Unix(ts, 0).UTC(), nil
}

// canonicalJSON encodes maps with sorted keys (encoding/json always sorts map
// keys) and leaves <, > and & unescaped.
func canonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
