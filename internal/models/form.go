package models

// FieldType is the kind of input rendered for a property
type FieldType string

const (
	FieldTypePassword FieldType = "password"
	FieldTypeToggle   FieldType = "toggle"
	FieldTypeText     FieldType = "text"
)

// FormSection identifies where a field is placed in the editor
type FormSection string

const (
	SectionRequired FormSection = "required"
	SectionOptional FormSection = "optional"
)

// FieldDescriptor describes one rendered input of the connection editor
type FieldDescriptor struct {
	Name            string      `json:"name"`
	Label           string      `json:"label"`
	Type            FieldType   `json:"type"`
	Value           *string     `json:"value,omitempty"`
	Required        bool        `json:"required"`
	RequiredMessage string      `json:"required_message"`
	Section         FormSection `json:"section"`
}

// SQLField is one statement shown in the SQL editor
type SQLField struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Category SQLCategory `json:"category"`
	Value    string      `json:"value"`
}

// FormView is the complete state the console needs to draw the editor
type FormView struct {
	UserstoreID            string            `json:"userstore_id"`
	Type                   UserstoreType     `json:"type"`
	Required               []FieldDescriptor `json:"required"`
	Optional               []FieldDescriptor `json:"optional,omitempty"`
	SQL                    []SQLField        `json:"sql,omitempty"`
	ShowMore               bool              `json:"show_more"`
	HasOptional            bool              `json:"has_optional"`
	OptionalEditsDiscarded bool              `json:"optional_edits_discarded"`
	TestButton             StatusDisplay     `json:"test_button"`
}
