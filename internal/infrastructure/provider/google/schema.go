package google

// Schema is the subset of the Gemini v1beta response-schema language the
// relay emits.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

const (
	typeObject = "OBJECT"
	typeString = "STRING"
)

// SchemaInstruction is prepended as a system block when JSON reasoning mode
// is active. It restates the responseSchema contract in prose because the
// schema alone does not stop models from wrapping output in markdown fences.
const SchemaInstruction = "You must respond with a single valid JSON object and nothing else. " +
	"The object has exactly two string fields: \"reasoning\", containing your " +
	"complete step-by-step thinking, and \"answer\", containing only the final " +
	"reply for the user. Do not wrap the JSON in markdown fences or add any " +
	"text outside the object."

// reasoningSchema binds model output to the two-field envelope the
// reasoning extractor splits into reasoning and content streams.
func reasoningSchema() *Schema {
	return &Schema{
		Type: typeObject,
		Properties: map[string]*Schema{
			"reasoning": {
				Type:        typeString,
				Description: "The step-by-step thinking that leads to the answer.",
			},
			"answer": {
				Type:        typeString,
				Description: "The final answer presented to the user.",
			},
		},
		Required: []string{"reasoning", "answer"},
	}
}
