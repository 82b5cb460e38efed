package lead

import (
	"encoding/json"
	"strings"
)

// ActionLogLead is the single structured action the response generator
// may invoke to capture a qualified lead.
const ActionLogLead = "log_lead"

// Lead is the set of optional fields assembled by the model's
// structured extraction. All fields are free-form strings; absence is
// the empty string.
type Lead struct {
	Name         string `json:"name,omitempty"`
	Contact      string `json:"contact,omitempty"`
	Budget       string `json:"budget,omitempty"`
	Location     string `json:"location,omitempty"`
	PropertyType string `json:"property_type,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Capture tags a Lead with the action that produced it.
type Capture struct {
	Action string `json:"action"`
	Lead   Lead   `json:"lead"`
}

// FromArgs coerces a tool-call argument map into a Lead. Unknown keys
// are ignored; non-string values are dropped.
func FromArgs(args map[string]any) Lead {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := args[k]; ok {
				if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
		return ""
	}
	return Lead{
		Name:         get("name"),
		Contact:      get("contact", "email", "phone"),
		Budget:       get("budget", "budget_range"),
		Location:     get("location", "location_preference"),
		PropertyType: get("property_type"),
		Notes:        get("notes"),
	}
}

// Empty reports whether no field was captured.
func (l Lead) Empty() bool {
	return l == Lead{}
}

// EmailAddress returns the contact field when it looks like an email
// address, empty otherwise. The confirmation mail needs a deliverable
// address, not a phone number.
func (l Lead) EmailAddress() string {
	c := strings.TrimSpace(l.Contact)
	if strings.Count(c, "@") == 1 && !strings.ContainsAny(c, " \t") {
		return c
	}
	return ""
}

// MarshalJSONValue renders the lead as a JSON document for storage.
func (l Lead) MarshalJSONValue() ([]byte, error) {
	return json.Marshal(l)
}

// UnmarshalJSONValue parses a stored JSON document back into a Lead.
func UnmarshalJSONValue(data []byte) (Lead, error) {
	var l Lead
	if len(data) == 0 {
		return l, nil
	}
	err := json.Unmarshal(data, &l)
	return l, err
}

// Schema is the JSON schema advertised to the model for the log_lead
// action. Every field is optional; the model decides when the lead is
// complete enough to emit.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":          map[string]any{"type": "string", "description": "Caller's full name"},
			"contact":       map[string]any{"type": "string", "description": "Email address or phone number"},
			"budget":        map[string]any{"type": "string", "description": "Budget range, free-form"},
			"location":      map[string]any{"type": "string", "description": "Preferred area or community"},
			"property_type": map[string]any{"type": "string", "description": "Villa, apartment, townhouse, etc."},
			"notes":         map[string]any{"type": "string", "description": "Anything else worth recording"},
		},
	}
}
