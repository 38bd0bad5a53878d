package runtime

// ValidationResult maps field names to their failure messages in rule order.
// Fields without failures are absent.
type ValidationResult struct {
	Errors map[string][]string `json:"errors"`
}

// IsValid reports whether no field failed.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// FieldErrors returns the failure messages recorded for a field.
func (r ValidationResult) FieldErrors(name string) []string {
	return r.Errors[name]
}

// ValidateFields applies every rule of every field to the supplied values.
// A nil map, or a missing key, is seen by the rules as a nil value. Rules are
// never short-circuited: each failing rule contributes its own message.
func ValidateFields(fields []FieldDefinition, values map[string]any) ValidationResult {
	result := ValidationResult{Errors: make(map[string][]string)}

	for _, field := range fields {
		value := values[field.name]

		var messages []string
		for _, rule := range field.rules {
			if !rule.Validate(value) {
				messages = append(messages, rule.Message())
			}
		}

		if len(messages) > 0 {
			result.Errors[field.name] = messages
		}
	}

	return result
}
