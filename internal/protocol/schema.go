package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed request.schema.json
var requestSchema []byte

const requestSchemaURL = "leadsync/request.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(requestSchema))
		if err != nil {
			schemaErr = fmt.Errorf("failed to parse request schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(requestSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("failed to add request schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(requestSchemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateRequest checks raw JSON against the request schema.
func ValidateRequest(data []byte) error {
	sch, err := loadSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// DecodeRequest validates then decodes raw JSON into a [Request].
func DecodeRequest(data []byte) (Request, error) {
	if err := ValidateRequest(data); err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return req, nil
}
