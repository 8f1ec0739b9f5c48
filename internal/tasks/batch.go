package tasks

import (
	"encoding/json"
	"iter"
	"slices"

	"github.com/segmentio/ksuid"
)

// Event is a batch of change-stream records: {"Records": [...]}. Records are
// kept raw so that one malformed record fails at its own position instead of
// failing the whole batch unmarshal.
type Event struct {
	Records []json.RawMessage `json:"Records"`
}

const keyRecords = "Records"

// ParseEvent unmarshals a batch. A missing Records key is reported when the
// batch is read, not here.
func ParseEvent(data []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Event{}, validationErrorf("Malformed stream batch: %v", err)
	}

	var event Event
	if records, ok := fields[keyRecords]; ok {
		if err := json.Unmarshal(records, &event.Records); err != nil {
			return Event{}, validationErrorf("Malformed stream batch: %v", err)
		}
	}
	return event, nil
}

// YieldFromEvent decodes the records of a batch lazily, in order. The first
// failure is yielded as the error and ends the sequence; records after it are
// never decoded.
func YieldFromEvent(event Event) iter.Seq2[*BotteMessageTask, error] {
	return func(yield func(*BotteMessageTask, error) bool) {
		if event.Records == nil {
			yield(nil, validationErrorf(`Malformed stream batch: no ["Records"]`))
			return
		}

		for _, raw := range event.Records {
			task, err := MakeFromRecord(raw)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(task, nil) {
				return
			}
		}
	}
}

// CollectFromEvent decodes a whole batch. It is all-or-nothing: on error no
// task is returned.
func CollectFromEvent(event Event) ([]*BotteMessageTask, error) {
	out := make([]*BotteMessageTask, 0, len(event.Records))
	for task, err := range YieldFromEvent(event) {
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

// SortByKSUID orders tasks by identifier, i.e. by creation time. Stream shards
// are ordered individually, so a batch is re-sorted before dispatch.
func SortByKSUID(tasks []*BotteMessageTask) {
	slices.SortStableFunc(tasks, func(a, b *BotteMessageTask) int {
		return ksuid.Compare(a.KSUID, b.KSUID)
	})
}
