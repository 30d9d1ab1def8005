package update

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

// Embedded payload schemas. The schema pass runs before the typed
// decoders and turns shape mistakes into named diagnostics instead of a
// generic decode error; range and semantic checks (weights, regex
// compilation, featurizer version) stay with the typed compilers.

const indicatorsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "version": {"type": "string"},
    "ips": {"type": "array", "items": {"type": "string"}},
    "domains": {"type": "array", "items": {"type": "string"}},
    "hashes": {"type": "array", "items": {"type": "string"}},
    "processes": {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

const patternsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["patterns"],
  "properties": {
    "version": {"type": "string"},
    "patterns": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "tests"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "tactic": {"type": "string"},
          "technique": {"type": "string"},
          "weight": {"type": "number"},
          "tests": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["field", "op", "value"],
              "properties": {
                "field": {"type": "string", "minLength": 1},
                "op": {"enum": ["equals", "contains", "regex"]},
                "value": {"type": "string"}
              },
              "additionalProperties": false
            }
          }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

const rulesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "expr": {
      "type": "object",
      "oneOf": [
        {
          "required": ["all"],
          "properties": {"all": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/expr"}}},
          "additionalProperties": false
        },
        {
          "required": ["any"],
          "properties": {"any": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/expr"}}},
          "additionalProperties": false
        },
        {
          "required": ["not"],
          "properties": {"not": {"$ref": "#/definitions/expr"}},
          "additionalProperties": false
        },
        {
          "required": ["field", "op"],
          "properties": {
            "field": {"type": "string", "minLength": 1},
            "op": {"enum": ["equals", "contains", "regex", "eq", "ne", "gt", "gte", "lt", "lte"]},
            "value": {}
          },
          "additionalProperties": false
        }
      ]
    }
  },
  "type": "object",
  "required": ["rules"],
  "properties": {
    "version": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "weight", "where"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "title": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}},
          "weight": {"type": "number"},
          "where": {"$ref": "#/definitions/expr"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

const anomalyModelSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["format", "featurizer_version", "dim", "mean", "scale", "weights", "intercept"],
  "properties": {
    "format": {"type": "string"},
    "featurizer_version": {"type": "integer"},
    "dim": {"type": "integer", "minimum": 1},
    "mean": {"type": "array", "items": {"type": "number"}},
    "scale": {"type": "array", "items": {"type": "number"}},
    "weights": {"type": "array", "items": {"type": "number"}},
    "intercept": {"type": "number"}
  },
  "additionalProperties": false
}`

var payloadSchemas = map[model.StoreKind]*gojsonschema.Schema{
	model.StoreIndicators:   mustSchema(indicatorsSchema),
	model.StorePatterns:     mustSchema(patternsSchema),
	model.StoreRules:        mustSchema(rulesSchema),
	model.StoreAnomalyModel: mustSchema(anomalyModelSchema),
}

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("embedded schema does not compile: %v", err))
	}
	return schema
}

// validateSchema runs the schema pre-pass for one payload document.
func validateSchema(kind model.StoreKind, doc []byte) error {
	schema, ok := payloadSchemas[kind]
	if !ok {
		return errclass.ErrPayloadInvalid.WithMessagef("no schema for store kind %q", kind)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return errclass.ErrPayloadInvalid.WithMessagef("payload %s does not parse: %v", kind, err)
	}
	if result.Valid() {
		return nil
	}

	// Name the first few violations; a dump of hundreds helps nobody.
	msgs := make([]string, 0, 3)
	for i, desc := range result.Errors() {
		if i == 3 {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(result.Errors())-3))
			break
		}
		msgs = append(msgs, desc.String())
	}
	return errclass.ErrPayloadInvalid.WithMessagef("payload %s: %s", kind, strings.Join(msgs, "; "))
}
