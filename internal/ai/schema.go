package ai

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JobsSchema constrains the model output.
const JobsSchema = `{
  "type": "object",
  "required": ["jobs"],
  "properties": {
    "jobs": {
      "type": "array",
      "maxItems": 200,
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title":           {"type": "string", "minLength": 1},
          "location":        {"type": "string"},
          "description":     {"type": "string"},
          "url":             {"type": "string"},
          "department":      {"type": "string"},
          "employment_type": {"type": "string"},
          "salary":          {"type": "string"},
          "posted_at":       {"type": "string"},
          "skills":          {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

var jobsSchemaLoader = gojsonschema.NewStringLoader(JobsSchema)

// ValidationError lists the schema violations of a model response.
type ValidationError struct {
	Errors []FieldError
}

type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:")
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, " %d. %s: %s;", i+1, err.Field, err.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// ValidateJobs checks raw JSON against JobsSchema.
func ValidateJobs(raw string) error {
	result, err := gojsonschema.Validate(jobsSchemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("failed to validate extraction: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}
