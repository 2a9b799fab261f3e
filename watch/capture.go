package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/petal-labs/toolwatch/fingerprint"
)

// Capturer produces the current fingerprint for one declared tool.
type Capturer interface {
	Capture(ctx context.Context, toolName string, decl ToolDeclaration) (fingerprint.Fingerprint, error)
}

// FileCapturer fingerprints tools from schema and response files on disk.
type FileCapturer struct {
	fingerprinter *fingerprint.Fingerprinter
}

// NewFileCapturer creates a FileCapturer. A nil fingerprinter defaults to a
// wall-clock one.
func NewFileCapturer(fp *fingerprint.Fingerprinter) *FileCapturer {
	if fp == nil {
		fp = fingerprint.New(fingerprint.Config{})
	}
	return &FileCapturer{fingerprinter: fp}
}

// Capture loads the declared schema file (and response samples, when
// declared) and fingerprints them.
func (c *FileCapturer) Capture(ctx context.Context, toolName string, decl ToolDeclaration) (fingerprint.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return fingerprint.Fingerprint{}, err
	}

	schema, err := LoadSchemaFile(decl.Schema)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}

	var responses []map[string]any
	if decl.Responses != "" {
		responses, err = LoadResponsesFile(decl.Responses)
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
	}

	return c.fingerprinter.Fingerprint(toolName, schema, responses, decl.Version)
}

// LoadSchemaFile reads a JSON schema document from disk. Numbers decode as
// json.Number so integer and float literals keep distinct fingerprints.
func LoadSchemaFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watch: read schema: %w", err)
	}
	var schema any
	if err := decodeJSONNumbers(data, &schema); err != nil {
		return nil, fmt.Errorf("watch: parse schema %q: %w", path, err)
	}
	return schema, nil
}

// LoadResponsesFile reads a JSON array of sample response records from disk.
// Numbers decode as json.Number so integer and float values keep distinct
// type tags.
func LoadResponsesFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watch: read responses: %w", err)
	}
	var responses []map[string]any
	if err := decodeJSONNumbers(data, &responses); err != nil {
		return nil, fmt.Errorf("watch: parse responses %q: %w", path, err)
	}
	return responses, nil
}

func decodeJSONNumbers(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

var _ Capturer = (*FileCapturer)(nil)
