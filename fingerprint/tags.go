package fingerprint

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/petal-labs/toolwatch/canonical"
)

// TypeTag is a coarse category label for a response value. Tags deliberately
// discard value content; only the category feeds the response pattern hash.
type TypeTag string

const (
	TagString  TypeTag = "string"
	TagInteger TypeTag = "integer"
	TagFloat   TypeTag = "float"
	TagBoolean TypeTag = "boolean"
	TagNull    TypeTag = "null"
	TagObject  TypeTag = "object"
	TagArray   TypeTag = "array"
)

// TagOf classifies a JSON-like value into the fixed tag vocabulary.
//
// Floats carrying an integral value tag as "integer": encoding/json decodes
// every JSON number to float64, so an integral float64 is indistinguishable
// from a JSON integer by the time it reaches the summarizer.
func TagOf(v any) (TypeTag, error) {
	switch val := v.(type) {
	case nil:
		return TagNull, nil
	case bool:
		return TagBoolean, nil
	case string:
		return TagString, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TagInteger, nil
	case float32:
		return tagOfFloat(float64(val))
	case float64:
		return tagOfFloat(val)
	case json.Number:
		if !strings.ContainsAny(val.String(), ".eE") {
			return TagInteger, nil
		}
		return TagFloat, nil
	case map[string]any:
		return TagObject, nil
	case []any:
		return TagArray, nil
	default:
		return "", &canonical.EncodingError{Path: "$", Reason: fmt.Sprintf("no type tag for %T", v)}
	}
}

func tagOfFloat(f float64) (TypeTag, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", &canonical.EncodingError{Path: "$", Reason: "non-finite float"}
	}
	if f == math.Trunc(f) {
		return TagInteger, nil
	}
	return TagFloat, nil
}
