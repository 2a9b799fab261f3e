// Package canonical renders structured values into a single deterministic
// textual form and hashes it. Object keys are sorted at every nesting level
// and each scalar has exactly one encoding, so two structurally equal values
// always produce identical bytes regardless of map iteration order.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// maxDepth bounds recursion so cyclic or absurdly deep structures fail with
// an EncodingError instead of exhausting the stack.
const maxDepth = 1000

// EncodingError reports a value that cannot be represented in the canonical
// encoding, such as a non-finite float or a Go type outside the supported set.
type EncodingError struct {
	Path   string
	Reason string
}

func (e *EncodingError) Error() string {
	path := strings.TrimSpace(e.Path)
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("canonical: cannot encode value at %s: %s", path, e.Reason)
}

// Encode serializes v into its canonical textual form.
//
// Supported value kinds: nil, bool, string, signed and unsigned integers,
// floats, json.Number, []any, and map[string]any. Anything else yields an
// EncodingError.
func Encode(v any) (string, error) {
	var sb strings.Builder
	if err := encodeValue(&sb, v, "$", 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Hash returns the lowercase-hex SHA-256 digest of v's canonical encoding.
func Hash(v any) (string, error) {
	text, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]), nil
}

func encodeValue(sb *strings.Builder, v any, path string, depth int) error {
	if depth > maxDepth {
		return &EncodingError{Path: path, Reason: "nesting exceeds maximum depth (cyclic structure?)"}
	}

	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case string:
		return encodeString(sb, val, path)
	case int:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(val, 10))
	case uint:
		sb.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		sb.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		sb.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		sb.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(val, 10))
	case float32:
		return encodeFloat(sb, float64(val), path)
	case float64:
		return encodeFloat(sb, val, path)
	case json.Number:
		return encodeNumber(sb, val, path)
	case []any:
		return encodeArray(sb, val, path, depth)
	case map[string]any:
		return encodeObject(sb, val, path, depth)
	default:
		return &EncodingError{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
	return nil
}

func encodeString(sb *strings.Builder, s string, path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return &EncodingError{Path: path, Reason: err.Error()}
	}
	sb.Write(data)
	return nil
}

// encodeFloat writes floats with an integral value in integer form so that a
// value decoded as 2 and one decoded as 2.0 canonicalize identically.
func encodeFloat(sb *strings.Builder, f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &EncodingError{Path: path, Reason: "non-finite float"}
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		sb.WriteString(strconv.FormatFloat(f, 'f', 0, 64))
		return nil
	}
	sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// encodeNumber preserves the lexical integer/float distinction a JSON
// document carries: 4 and 4.0 encode differently, so a response value
// drifting from one to the other changes the hash.
func encodeNumber(sb *strings.Builder, n json.Number, path string) error {
	if i, err := n.Int64(); err == nil {
		sb.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	text := n.String()
	if isIntegerLiteral(text) {
		// Integer beyond the int64 range; the literal is already canonical.
		sb.WriteString(text)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return &EncodingError{Path: path, Reason: fmt.Sprintf("invalid number %q", text)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &EncodingError{Path: path, Reason: "non-finite float"}
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		sb.WriteString(strconv.FormatFloat(f, 'f', 1, 64))
		return nil
	}
	sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func isIntegerLiteral(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func encodeArray(sb *strings.Builder, arr []any, path string, depth int) error {
	sb.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			sb.WriteByte(',')
		}
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		if err := encodeValue(sb, item, itemPath, depth+1); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

func encodeObject(sb *strings.Builder, obj map[string]any, path string, depth int) error {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := encodeString(sb, key, path); err != nil {
			return err
		}
		sb.WriteByte(':')
		if err := encodeValue(sb, obj[key], path+"."+key, depth+1); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}
