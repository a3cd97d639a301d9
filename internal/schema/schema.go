// Package schema embeds the JSON Schemas for tool inputs and results and
// validates documents against them.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var files embed.FS

// Name identifies an embedded schema.
type Name string

const (
	ToolResult       Name = "tool_result"
	ToolResponse     Name = "tool_response"
	StampDataInput   Name = "stamp_data_input"
	StampHashInput   Name = "stamp_hash_input"
	StampStatusInput Name = "stamp_status_input"
	VerifyDataInput  Name = "verify_data_input"
	ReadyInput       Name = "ready_input"
	SetAPIKeyInput   Name = "set_api_key_input"
	EmptyInput       Name = "empty_input"
)

// ToolResultURI is the $id of the tool result envelope schema.
const ToolResultURI = "https://integritas.dev/schemas/tool-result-v1.json"

var fileNames = map[Name]string{
	ToolResult:       "schemas/tool-result-v1.json",
	ToolResponse:     "schemas/tool-response-v1.json",
	StampDataInput:   "schemas/stamp-data-input.json",
	StampHashInput:   "schemas/stamp-hash-input.json",
	StampStatusInput: "schemas/stamp-status-input.json",
	VerifyDataInput:  "schemas/verify-data-input.json",
	ReadyInput:       "schemas/ready-input.json",
	SetAPIKeyInput:   "schemas/set-api-key-input.json",
	EmptyInput:       "schemas/empty-input.json",
}

type entry struct {
	raw      json.RawMessage
	decoded  map[string]any
	compiled *jsonschema.Schema
}

var (
	loadOnce sync.Once
	entries  map[Name]*entry
	loadErr  error
)

func load() {
	entries = make(map[Name]*entry, len(fileNames))
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	ids := make(map[Name]string, len(fileNames))
	for name, file := range fileNames {
		raw, err := files.ReadFile(file)
		if err != nil {
			loadErr = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			loadErr = fmt.Errorf("parse schema %s: %w", name, err)
			return
		}
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			loadErr = fmt.Errorf("decode schema %s: %w", name, err)
			return
		}
		id, _ := decoded["$id"].(string)
		if id == "" {
			loadErr = fmt.Errorf("schema %s has no $id", name)
			return
		}
		if err := c.AddResource(id, doc); err != nil {
			loadErr = fmt.Errorf("add schema %s: %w", name, err)
			return
		}
		ids[name] = id
		entries[name] = &entry{raw: raw, decoded: decoded}
	}
	for name, id := range ids {
		compiled, err := c.Compile(id)
		if err != nil {
			loadErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		entries[name].compiled = compiled
	}
}

func lookup(name Name) (*entry, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	e, ok := entries[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return e, nil
}

// Raw returns the schema document as stored.
func Raw(name Name) (json.RawMessage, bool) {
	e, err := lookup(name)
	if err != nil {
		return nil, false
	}
	return e.raw, true
}

// Map returns a fresh decoded copy of the schema document.
func Map(name Name) map[string]any {
	e, err := lookup(name)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	_ = json.Unmarshal(e.raw, &out)
	return out
}

// Validate checks a JSON document against the named schema.
func Validate(name Name, doc []byte) error {
	e, err := lookup(name)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(doc)) == 0 {
		doc = []byte("{}")
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return e.compiled.Validate(v)
}
