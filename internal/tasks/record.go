package tasks

import (
	"encoding/json"
	"math"

	"github.com/aws/aws-lambda-go/events"

	"github.com/botte/botte-service/internal/attrvalue"
)

// Change-stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// Record is one change-stream notification:
//
//	{
//	    "eventID": "17",
//	    "eventName": "INSERT",
//	    "eventVersion": "1.1",
//	    "eventSource": "botte:postgres",
//	    "dynamodb": {
//	        "ApproximateCreationDateTime": 1698673253,
//	        "Keys": {"PK": {"S": "BOTTE_MESSAGE"}, "SK": {"S": "2XfZrNMydhTvwyWlHdzJPdz3wuA"}},
//	        "NewImage": {
//	            "PK": {"S": "BOTTE_MESSAGE"},
//	            "SK": {"S": "2XfZrNMydhTvwyWlHdzJPdz3wuA"},
//	            "TaskId": {"S": "BOTTE_MESSAGE"},
//	            "SenderApp": {"S": "BOTTE_HTTP_CLIENT"},
//	            "Payload": {"M": {"text": {"S": "Hello world!"}}},
//	            "ExpirationTs": {"N": "1698672903"}
//	        },
//	        "SequenceNumber": "17",
//	        "SizeBytes": 180,
//	        "StreamViewType": "NEW_AND_OLD_IMAGES"
//	    }
//	}
type Record = events.DynamoDBEventRecord

// StreamRecord is the change itself: keys plus item images.
type StreamRecord = events.DynamoDBStreamRecord

// Exact record keys. encoding/json matches struct fields case-insensitively,
// so raw records are read through these instead of the Record struct.
const (
	keyEventID   = "eventID"
	keyEventName = "eventName"
	keyChange    = "dynamodb"
	keyNewImage  = "NewImage"
)

// MakeFromRecord decodes a raw change-stream record into a task. Only INSERT
// records with a well-formed image are accepted; any other input returns a
// *ValidationError naming the first offending field.
func MakeFromRecord(raw json.RawMessage) (*BotteMessageTask, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, validationErrorf("Malformed record: %v", err)
	}
	if fields == nil {
		return nil, validationErrorf("Malformed record: %s", raw)
	}

	eventID := stringField(fields, keyEventID)
	if eventName := stringField(fields, keyEventName); eventName != EventInsert {
		return nil, validationErrorf("Not an INSERT stream event: %s", eventName)
	}

	var change map[string]json.RawMessage
	if data, ok := fields[keyChange]; ok {
		// A change that is not an object has no NewImage.
		_ = json.Unmarshal(data, &change)
	}

	var image attrvalue.Map
	if data, ok := change[keyNewImage]; ok {
		if err := json.Unmarshal(data, &image); err != nil {
			return nil, validationErrorf("dynamodb > NewImage malformed in record %s: %v", eventID, err)
		}
	}
	return fromImage(eventID, image)
}

// FromRecord is MakeFromRecord for an already unmarshalled record.
func FromRecord(record Record) (*BotteMessageTask, error) {
	if record.EventName != EventInsert {
		return nil, validationErrorf("Not an INSERT stream event: %s", record.EventName)
	}
	return fromImage(record.EventID, record.Change.NewImage)
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if data, ok := fields[key]; ok {
		_ = json.Unmarshal(data, &s)
	}
	return s
}

func fromImage(eventID string, image attrvalue.Map) (*BotteMessageTask, error) {
	if len(image) == 0 {
		return nil, validationErrorf("dynamodb > NewImage missing in record %s", eventID)
	}

	pk := image.Get(AttrPK)
	sk := image.Get(AttrSK)
	taskID := image.Get(AttrTaskID)
	senderApp := image.Get(AttrSenderApp)
	payload := image.Get(AttrPayload)
	expirationTs := image.Get(AttrExpirationTs)

	if s, ok := pk.(string); !ok || !IsValidPartitionKey(s) {
		return nil, validationErrorf("Invalid PK: %v", pk)
	}

	skStr, _ := sk.(string)
	id, ok := ParseKSUID(skStr)
	if !ok || !isRecentKSUID(id) {
		return nil, validationErrorf("SK must be KsuidMs: %v", sk)
	}

	if taskID != BotteMessageTaskID {
		return nil, validationErrorf("Invalid TaskId: %v", taskID)
	}

	senderAppStr, ok := senderApp.(string)
	if !ok || senderAppStr == "" {
		return nil, validationErrorf("Invalid SenderApp: %v", senderApp)
	}

	payloadMap, ok := payload.(map[string]any)
	if !ok || len(payloadMap) == 0 {
		return nil, validationErrorf("Invalid Payload: %v", payload)
	}
	text, ok := payloadMap[payloadText].(string)
	if !ok || text == "" {
		return nil, validationErrorf("Invalid text: %v", payloadMap[payloadText])
	}

	ts, ok := toUnixSeconds(expirationTs)
	if !ok {
		return nil, validationErrorf("Invalid format for ExpirationTs: %v", expirationTs)
	}
	if _, err := ExpirationTime(ts); err != nil {
		return nil, validationErrorf("Invalid format for ExpirationTs: %v", expirationTs)
	}

	return New(NewTaskInput{
		Text:         text,
		SenderApp:    senderAppStr,
		KSUID:        id,
		ExpirationTs: ts,
	}), nil
}

// toUnixSeconds accepts N attributes as well as numeric strings.
func toUnixSeconds(v any) (int64, bool) {
	switch x := v.(type) {
	case attrvalue.Number:
		i, err := x.Int64()
		return i, err == nil
	case string:
		i, err := attrvalue.Number(x).Int64()
		return i, err == nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}
