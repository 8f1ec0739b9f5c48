// Package attrvalue converts between native Go values and typed attribute
// values, the {"S": "..."}, {"N": "..."}, {"M": {...}} representation used by
// the task table images and by change-stream records.
package attrvalue

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// AttributeValue is a single typed value. Its JSON decoding accepts only the
// exact type keys ("S", "N", "M", ...).
type AttributeValue = events.DynamoDBAttributeValue

// Number is a decoded N attribute. It keeps the textual form so that callers
// decide how (and whether) to convert it.
type Number string

// Int64 converts the number to an int64, truncating a fractional part.
func (n Number) Int64() (int64, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", string(n), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("number out of range: %q", string(n))
	}
	return int64(f), nil
}

// Map is an item image: attribute name to typed value.
type Map map[string]events.DynamoDBAttributeValue

// Decode converts a typed value to a native one: S → string, N → Number,
// BOOL → bool, NULL → nil, M → map[string]any, L → []any, SS → []string,
// NS → []Number, B → []byte, BS → [][]byte.
func Decode(av AttributeValue) any {
	switch av.DataType() {
	case events.DataTypeString:
		return av.String()
	case events.DataTypeNumber:
		return Number(av.Number())
	case events.DataTypeBoolean:
		return av.Boolean()
	case events.DataTypeNull:
		return nil
	case events.DataTypeMap:
		return DecodeMap(av.Map())
	case events.DataTypeList:
		list := av.List()
		out := make([]any, len(list))
		for i := range list {
			out[i] = Decode(list[i])
		}
		return out
	case events.DataTypeStringSet:
		return append([]string(nil), av.StringSet()...)
	case events.DataTypeNumberSet:
		ns := av.NumberSet()
		out := make([]Number, len(ns))
		for i, n := range ns {
			out[i] = Number(n)
		}
		return out
	case events.DataTypeBinary:
		return av.Binary()
	case events.DataTypeBinarySet:
		return av.BinarySet()
	}
	return nil
}

// DecodeMap decodes every attribute of an image.
func DecodeMap(m map[string]AttributeValue) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Decode(v)
	}
	return out
}

// Get decodes the named attribute of an image; a missing attribute decodes
// to nil.
func (m Map) Get(name string) any {
	av, ok := m[name]
	if !ok {
		return nil
	}
	return Decode(av)
}

// Marshal converts a native value to its typed form.
func Marshal(v any) (AttributeValue, error) {
	switch x := v.(type) {
	case nil:
		return events.NewNullAttribute(), nil
	case string:
		return events.NewStringAttribute(x), nil
	case bool:
		return events.NewBooleanAttribute(x), nil
	case Number:
		return events.NewNumberAttribute(string(x)), nil
	case json.Number:
		return events.NewNumberAttribute(x.String()), nil
	case int:
		return events.NewNumberAttribute(strconv.FormatInt(int64(x), 10)), nil
	case int32:
		return events.NewNumberAttribute(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return events.NewNumberAttribute(strconv.FormatInt(x, 10)), nil
	case uint32:
		return events.NewNumberAttribute(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return events.NewNumberAttribute(strconv.FormatUint(x, 10)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return AttributeValue{}, fmt.Errorf("unsupported number: %v", x)
		}
		return events.NewNumberAttribute(strconv.FormatFloat(x, 'f', -1, 64)), nil
	case []byte:
		return events.NewBinaryAttribute(x), nil
	case map[string]any:
		m, err := MarshalMap(x)
		if err != nil {
			return AttributeValue{}, err
		}
		return events.NewMapAttribute(m), nil
	case map[string]string:
		m := make(map[string]AttributeValue, len(x))
		for k, s := range x {
			m[k] = events.NewStringAttribute(s)
		}
		return events.NewMapAttribute(m), nil
	case []string:
		l := make([]AttributeValue, len(x))
		for i := range x {
			l[i] = events.NewStringAttribute(x[i])
		}
		return events.NewListAttribute(l), nil
	case []any:
		l := make([]AttributeValue, len(x))
		for i, e := range x {
			av, err := Marshal(e)
			if err != nil {
				return AttributeValue{}, fmt.Errorf("index %d: %w", i, err)
			}
			l[i] = av
		}
		return events.NewListAttribute(l), nil
	}

	// Named map types such as tasks.Item.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return Marshal(m)
	}
	return AttributeValue{}, fmt.Errorf("unsupported type %T", v)
}

// MarshalMap converts a native mapping into an item image.
func MarshalMap(m map[string]any) (Map, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Map, len(m))
	for _, k := range keys {
		av, err := Marshal(m[k])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}
