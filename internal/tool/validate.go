package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// validatorCache holds compiled argument schemas keyed by tool name.
type validatorCache struct {
	mu      sync.Mutex
	schemas map[string]*gojsonschema.Schema
}

func newValidatorCache() *validatorCache {
	return &validatorCache{schemas: make(map[string]*gojsonschema.Schema)}
}

func (c *validatorCache) forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.schemas, name)
}

func (c *validatorCache) compiled(t Tool) (*gojsonschema.Schema, error) {
	name := t.Name()
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.schemas[name]; ok {
		return s, nil
	}
	raw := t.Schema()
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	c.schemas[name] = s
	return s, nil
}

// ValidateArguments checks args against the tool's JSON Schema. Empty
// arguments are validated as an empty object. A tool without a schema
// accepts anything.
func ValidateArguments(t Tool, args json.RawMessage) error {
	return newValidatorCache().validate(t, args)
}

func (c *validatorCache) validate(t Tool, args json.RawMessage) error {
	schema, err := c.compiled(t)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	doc := bytes.TrimSpace(args)
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		doc = []byte("{}")
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %w", ErrInvalidArguments, errors.New(strings.Join(msgs, "; ")))
}
