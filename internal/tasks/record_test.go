package tasks

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botte/botte-service/internal/attrvalue"
)

// newImage returns a well-formed INSERT image for a fresh task.
func newImage(t *testing.T, task *BotteMessageTask) map[string]any {
	t.Helper()
	return map[string]any{
		"PK":           map[string]any{"S": task.PartitionKey()},
		"SK":           map[string]any{"S": task.KSUID.String()},
		"TaskId":       map[string]any{"S": BotteMessageTaskID},
		"SenderApp":    map[string]any{"S": task.SenderApp},
		"Payload":      map[string]any{"M": map[string]any{"text": map[string]any{"S": task.Text}}},
		"ExpirationTs": map[string]any{"N": strconv.FormatInt(task.ExpirationTs, 10)},
	}
}

func makeRecord(t *testing.T, eventName string, image map[string]any) json.RawMessage {
	t.Helper()
	record := map[string]any{
		"eventID":      "ff29711457aeb0372bc2a89d8edd7098",
		"eventName":    eventName,
		"eventVersion": "1.1",
		"eventSource":  "botte:postgres",
		"dynamodb": map[string]any{
			"ApproximateCreationDateTime": 1698673253,
			"NewImage":                    image,
			"SequenceNumber":              "45400000000013380201987",
			"SizeBytes":                   180,
			"StreamViewType":              "NEW_AND_OLD_IMAGES",
		},
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	return raw
}

func freshTask(fifo bool, group string) *BotteMessageTask {
	return New(NewTaskInput{
		Text:          testText,
		SenderApp:     testSenderApp,
		DoProcessFIFO: fifo,
		FIFOGroupID:   group,
		ExpirationTs:  testExpirationTs,
	})
}

func TestMakeFromRecord(t *testing.T) {
	tests := []struct {
		name  string
		fifo  bool
		group string
	}{
		{"not fifo", false, ""},
		{"fifo", true, ""},
		{"fifo with group", true, "G1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := freshTask(tt.fifo, tt.group)

			got, err := MakeFromRecord(makeRecord(t, EventInsert, newImage(t, task)))
			require.NoError(t, err)
			assert.Equal(t, task.Text, got.Text)
			assert.Equal(t, task.SenderApp, got.SenderApp)
			assert.Equal(t, task.KSUID, got.KSUID)
			assert.Equal(t, task.ExpirationTs, got.ExpirationTs)
			assert.False(t, got.DoProcessFIFO)
			assert.Empty(t, got.FIFOGroupID)
		})
	}
}

func TestRoundTripThroughAttributeImage(t *testing.T) {
	task := New(NewTaskInput{Text: testText, SenderApp: testSenderApp})

	item, err := task.ToItem()
	require.NoError(t, err)
	image, err := attrvalue.MarshalMap(item)
	require.NoError(t, err)

	raw, err := json.Marshal(Record{
		EventName: EventInsert,
		Change:    StreamRecord{NewImage: image},
	})
	require.NoError(t, err)

	got, err := MakeFromRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, task.Text, got.Text)
	assert.Equal(t, task.SenderApp, got.SenderApp)
	assert.Equal(t, task.KSUID, got.KSUID)
	assert.Equal(t, task.ExpirationTs, got.ExpirationTs)
}

func TestMakeFromRecordInvalidFields(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(image map[string]any)
		contains string
	}{
		{
			name:     "invalid PK",
			mutate:   func(image map[string]any) { image["PK"] = map[string]any{"S": BotteMessageTaskID + "_XXX"} },
			contains: "Invalid PK",
		},
		{
			name:     "no PK",
			mutate:   func(image map[string]any) { delete(image, "PK") },
			contains: "Invalid PK",
		},
		{
			name:     "PK not a string",
			mutate:   func(image map[string]any) { image["PK"] = map[string]any{"N": "1"} },
			contains: "Invalid PK",
		},
		{
			name: "invalid SK",
			mutate: func(image map[string]any) {
				sk := image["SK"].(map[string]any)["S"].(string)
				image["SK"] = map[string]any{"S": sk + "XXX"}
			},
			contains: "SK must be KsuidMs",
		},
		{
			name:     "SK with the right shape but an old timestamp",
			mutate:   func(image map[string]any) { image["SK"] = map[string]any{"S": "0000000000000000000000000zz"} },
			contains: "SK must be KsuidMs",
		},
		{
			name:     "no SK",
			mutate:   func(image map[string]any) { delete(image, "SK") },
			contains: "SK must be KsuidMs",
		},
		{
			name:     "invalid TaskId",
			mutate:   func(image map[string]any) { image["TaskId"] = map[string]any{"S": BotteMessageTaskID + "XXX"} },
			contains: "Invalid TaskId",
		},
		{
			name: "no TaskId",
			mutate: func(image map[string]any) {
				image["TaskIdXXX"] = image["TaskId"]
				delete(image, "TaskId")
			},
			contains: "Invalid TaskId",
		},
		{
			name: "no SenderApp",
			mutate: func(image map[string]any) {
				image["SenderAppXXX"] = image["SenderApp"]
				delete(image, "SenderApp")
			},
			contains: "Invalid SenderApp",
		},
		{
			name:     "SenderApp not a string",
			mutate:   func(image map[string]any) { image["SenderApp"] = map[string]any{"BOOL": true} },
			contains: "Invalid SenderApp",
		},
		{
			name: "no Payload",
			mutate: func(image map[string]any) {
				image["PayloadXXX"] = image["Payload"]
				delete(image, "Payload")
			},
			contains: "Invalid Payload",
		},
		{
			name:     "Payload not a map",
			mutate:   func(image map[string]any) { image["Payload"] = map[string]any{"S": testText} },
			contains: "Invalid Payload",
		},
		{
			name: "no Payload text",
			mutate: func(image map[string]any) {
				image["Payload"] = map[string]any{"M": map[string]any{"textXXX": map[string]any{"S": testText}}}
			},
			contains: "Invalid text",
		},
		{
			name:     "invalid ExpirationTs",
			mutate:   func(image map[string]any) { image["ExpirationTs"] = map[string]any{"N": "XXX"} },
			contains: "Invalid format for ExpirationTs",
		},
		{
			name: "no ExpirationTs",
			mutate: func(image map[string]any) {
				image["ExpirationTsXXX"] = image["ExpirationTs"]
				delete(image, "ExpirationTs")
			},
			contains: "Invalid format for ExpirationTs",
		},
		{
			name:     "ExpirationTs out of range",
			mutate:   func(image map[string]any) { image["ExpirationTs"] = map[string]any{"N": "99999999999999"} },
			contains: "Invalid format for ExpirationTs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := newImage(t, freshTask(false, ""))
			tt.mutate(image)

			task, err := MakeFromRecord(makeRecord(t, EventInsert, image))
			require.Error(t, err)
			assert.Nil(t, task)
			assert.True(t, IsValidationError(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestMakeFromRecordValidationOrder(t *testing.T) {
	image := newImage(t, freshTask(false, ""))
	image["PK"] = map[string]any{"S": "XXX"}
	image["TaskId"] = map[string]any{"S": "XXX"}

	_, err := MakeFromRecord(makeRecord(t, EventInsert, image))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid PK")
	assert.NotContains(t, err.Error(), "TaskId")
}

func TestMakeFromRecordRejectsNonInsertEvents(t *testing.T) {
	for _, eventName := range []string{EventModify, EventRemove, ""} {
		t.Run("event "+eventName, func(t *testing.T) {
			_, err := MakeFromRecord(makeRecord(t, eventName, newImage(t, freshTask(false, ""))))
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Contains(t, err.Error(), "Not an INSERT stream event")
		})
	}
}

func TestMakeFromRecordMalformed(t *testing.T) {
	t.Run("no NewImage", func(t *testing.T) {
		_, err := MakeFromRecord(makeRecord(t, EventInsert, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NewImage missing")
	})

	t.Run("empty NewImage", func(t *testing.T) {
		_, err := MakeFromRecord(makeRecord(t, EventInsert, map[string]any{}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NewImage missing")
	})

	t.Run("not a JSON object", func(t *testing.T) {
		_, err := MakeFromRecord(json.RawMessage(`["INSERT"]`))
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, err.Error(), "Malformed record")
	})
}

func TestMakeFromRecordKeysAreCaseSensitive(t *testing.T) {
	image := newImage(t, freshTask(false, ""))

	tests := []struct {
		name     string
		record   map[string]any
		contains string
	}{
		{
			name:     "upper case record keys",
			record:   map[string]any{"EVENTNAME": EventInsert, "DYNAMODB": map[string]any{"newimage": image}},
			contains: "Not an INSERT stream event",
		},
		{
			name:     "lower case change keys",
			record:   map[string]any{"eventName": EventInsert, "Dynamodb": map[string]any{"NewImage": image}},
			contains: "NewImage missing",
		},
		{
			name:     "lower case NewImage",
			record:   map[string]any{"eventName": EventInsert, "dynamodb": map[string]any{"newimage": image}},
			contains: "NewImage missing",
		},
		{
			name: "lower case type keys",
			record: map[string]any{"eventName": EventInsert, "dynamodb": map[string]any{"NewImage": map[string]any{
				"PK": map[string]any{"s": BotteMessageTaskID},
			}}},
			contains: "NewImage malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.record)
			require.NoError(t, err)

			task, err := MakeFromRecord(raw)
			require.Error(t, err)
			assert.Nil(t, task)
			assert.True(t, IsValidationError(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestFromRecord(t *testing.T) {
	task := freshTask(false, "")
	item, err := task.ToItem()
	require.NoError(t, err)
	image, err := attrvalue.MarshalMap(item)
	require.NoError(t, err)

	got, err := FromRecord(Record{EventName: EventInsert, Change: StreamRecord{NewImage: image}})
	require.NoError(t, err)
	assert.Equal(t, task.KSUID, got.KSUID)

	_, err = FromRecord(Record{EventName: EventRemove, Change: StreamRecord{OldImage: image}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not an INSERT stream event")
}

func TestSKSanityCheckUsesClock(t *testing.T) {
	task := freshTask(false, "")
	raw := makeRecord(t, EventInsert, newImage(t, task))

	defer func(orig func() time.Time) { now = orig }(now)

	now = func() time.Time { return task.KSUID.Time().AddDate(1, 0, 0) }
	_, err := MakeFromRecord(raw)
	assert.NoError(t, err)

	now = func() time.Time { return task.KSUID.Time().AddDate(3, 0, 0) }
	_, err = MakeFromRecord(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SK must be KsuidMs")
}
