package types

import "fmt"

// IntentRelationMap maps an intent label to the ordered list of relation
// types the graph expander should prefer for that intent. It is loaded once
// at process start, validated, and passed explicitly into the engine; it is
// never read from ambient global state.
type IntentRelationMap map[string][]RelationType

// PreferredFor returns the preferred relation types for an intent. Unknown
// intents (including IntentUnknown) prefer nothing, which makes expansion
// fall back to pure weight ordering.
func (m IntentRelationMap) PreferredFor(intent string) []RelationType {
	return m[intent]
}

// Intents returns the configured intent labels in map order. Useful for
// validating the input contract at the serving layer.
func (m IntentRelationMap) Intents() []string {
	out := make([]string, 0, len(m))
	for intent := range m {
		out = append(out, intent)
	}
	return out
}

// Validate checks the map at startup. A known intent with no relation types,
// a blank intent label, or a blank relation type is a configuration error;
// these are fatal at construction, never per-request.
func (m IntentRelationMap) Validate() error {
	for intent, relations := range m {
		if intent == "" {
			return &ConfigurationError{Field: "intents", Reason: "blank intent label"}
		}
		if len(relations) == 0 {
			return &ConfigurationError{
				Field:  fmt.Sprintf("intents.%s", intent),
				Reason: "no preferred relation types",
			}
		}
		for _, rel := range relations {
			if rel == "" {
				return &ConfigurationError{
					Field:  fmt.Sprintf("intents.%s", intent),
					Reason: "blank relation type",
				}
			}
		}
	}
	return nil
}
