package evaluator

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type summarySchema struct {
	once    sync.Once
	initErr error
	schema  *jsonschema.Schema
}

var summaryOutput summarySchema

func initSummarySchema() error {
	summaryOutput.once.Do(func() {
		summaryOutput.schema, summaryOutput.initErr = jsonschema.CompileString("summary_output", summaryOutputSchema)
	})
	return summaryOutput.initErr
}

// validateSummary checks raw against the summary output schema and decodes it.
func validateSummary(raw []byte) (SummaryOutput, error) {
	if err := initSummarySchema(); err != nil {
		return SummaryOutput{}, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return SummaryOutput{}, err
	}
	if err := summaryOutput.schema.Validate(doc); err != nil {
		return SummaryOutput{}, err
	}
	var out SummaryOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return SummaryOutput{}, err
	}
	return out, nil
}

// SummaryOutput is the decoded summarization reply.
type SummaryOutput struct {
	Summary string   `json:"summary"`
	Sources []string `json:"sources"`
}

const summaryOutputSchema = `{
  "type": "object",
  "required": ["summary"],
  "properties": {
    "summary": { "type": "string", "minLength": 1 },
    "sources": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "additionalProperties": true
}`
