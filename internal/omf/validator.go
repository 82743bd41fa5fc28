package omf

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[MessageType]string{
	TypeMessage:      "schemas/type.json",
	ContainerMessage: "schemas/container.json",
	DataMessage:      "schemas/data.json",
}

// Validator checks messages against the embedded JSON schemas. Schemas are
// compiled on first use.
type Validator struct {
	once    sync.Once
	schemas map[MessageType]*gojsonschema.Schema
	err     error
}

// NewValidator returns a validator for the embedded schemas.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) load() {
	v.schemas = make(map[MessageType]*gojsonschema.Schema, len(schemaFiles))
	for t, name := range schemaFiles {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			v.err = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			v.err = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		v.schemas[t] = schema
	}
}

// Validate marshals doc and validates it as a message of type t.
func (v *Validator) Validate(t MessageType, doc interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", t, err)
	}
	return v.ValidateBytes(t, b)
}

// ValidateBytes validates an encoded message of type t.
func (v *Validator) ValidateBytes(t MessageType, body []byte) error {
	v.once.Do(v.load)
	if v.err != nil {
		return v.err
	}
	schema, ok := v.schemas[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !res.Valid() {
		return fmt.Errorf("%w: %s message: %v", ErrInvalidMessage, t, res.Errors())
	}
	return nil
}
