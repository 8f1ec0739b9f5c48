package taskqueue

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/botte/botte-service/internal/attrvalue"
	"github.com/botte/botte-service/internal/tasks"
)

const (
	eventVersion   = "1.1"
	eventSource    = "botte:postgres"
	streamViewType = "NEW_AND_OLD_IMAGES"
)

// StreamRow is one row of the change log.
type StreamRow struct {
	Seq       int64         `db:"seq"`
	EventName string        `db:"event_name"`
	Keys      attrvalue.Map `db:"keys"`
	NewImage  attrvalue.Map `db:"new_image"`
	OldImage  attrvalue.Map `db:"old_image"`
	CreatedAt time.Time     `db:"created_at"`
}

// Record renders the row as a change-stream record.
func (r StreamRow) Record() tasks.Record {
	return tasks.Record{
		EventID:      strconv.FormatInt(r.Seq, 10),
		EventName:    r.EventName,
		EventVersion: eventVersion,
		EventSource:  eventSource,
		Change: events.DynamoDBStreamRecord{
			ApproximateCreationDateTime: events.SecondsEpochTime{Time: r.CreatedAt.Truncate(time.Second)},
			Keys:                        r.Keys,
			NewImage:                    r.NewImage,
			OldImage:                    r.OldImage,
			SequenceNumber:              strconv.FormatInt(r.Seq, 10),
			SizeBytes:                   imageSize(r.NewImage) + imageSize(r.OldImage),
			StreamViewType:              streamViewType,
		},
	}
}

// RawRecord is Record marshaled for a tasks.Event.
func (r StreamRow) RawRecord() (json.RawMessage, error) {
	return json.Marshal(r.Record())
}

func imageSize(image attrvalue.Map) int64 {
	if image == nil {
		return 0
	}
	data, err := json.Marshal(image)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// ReadStreamInput selects change-log rows after a sequence number.
type ReadStreamInput struct {
	AfterSeq   int64
	EventNames []string
	Limit      int
}

// ReadStreamResult holds the rows in sequence order. LastSeq is the highest
// sequence number scanned, including rows filtered out by event name.
type ReadStreamResult struct {
	Rows    []StreamRow
	LastSeq int64
	Err     error
}

// WriteTaskResult is the outcome of WriteTask.
type WriteTaskResult struct {
	PK  string
	SK  string
	Err error
}
