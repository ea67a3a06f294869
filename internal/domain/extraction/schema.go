package extraction

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/transaction"
)

// recordSchema describes what a well formed record looks like. Records that
// fail it are still kept; the count only feeds diagnostics.
const recordSchema = `{
  "type": "object",
  "properties": {
    "date":     {"type": "string"},
    "title":    {"type": "string"},
    "debit":    {"type": ["number", "string", "null"]},
    "credit":   {"type": ["number", "string", "null"]},
    "amount":   {"type": ["number", "string", "null"]},
    "category": {"type": ["string", "null"]},
    "note":     {"type": ["string", "null"]}
  },
  "required": ["date", "title"]
}`

// SchemaChecker validates raw records against the expected record shape.
type SchemaChecker struct {
	schema *jsonschema.Schema
}

// NewSchemaChecker compiles the record schema.
func NewSchemaChecker() (*SchemaChecker, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaChecker{schema: schema}, nil
}

// Check returns the number of records that do not match the schema and the
// first violation.
func (c *SchemaChecker) Check(records []transaction.Raw) (int, error) {
	bad := 0
	var first error
	for _, r := range records {
		if err := c.schema.Validate(map[string]any(r)); err != nil {
			bad++
			if first == nil {
				first = err
			}
		}
	}
	return bad, first
}
