package userstore

import (
	"fmt"

	"github.com/iamconsole/backend-go/internal/models"
)

// ResolveFieldType picks the input kind for a property from its "type" attribute
func ResolveFieldType(p *models.Property) models.FieldType {
	switch p.Type() {
	case models.PropertyTypePassword:
		return models.FieldTypePassword
	case models.PropertyTypeBoolean:
		return models.FieldTypeToggle
	default:
		return models.FieldTypeText
	}
}

// RequiredMessage is the validation message shown when a field is left empty
func RequiredMessage(p *models.Property) string {
	return fmt.Sprintf("%s is required", p.Label())
}

// Describe builds the field descriptor for a property.
// Password fields never carry a value back to the browser.
func Describe(p *models.Property, section models.FormSection) models.FieldDescriptor {
	field := models.FieldDescriptor{
		Name:            p.Name,
		Label:           p.Label(),
		Type:            ResolveFieldType(p),
		Required:        section == models.SectionRequired,
		RequiredMessage: RequiredMessage(p),
		Section:         section,
	}
	if field.Type != models.FieldTypePassword {
		field.Value = p.InitialValue()
	}
	return field
}

// RenderFields renders one descriptor per required property and, when
// showMore is set, one per optional non-SQL property.
func RenderFields(schema *models.PropertySchema, showMore bool) (required, optional []models.FieldDescriptor) {
	required = make([]models.FieldDescriptor, 0, len(schema.Required))
	for i := range schema.Required {
		required = append(required, Describe(&schema.Required[i], models.SectionRequired))
	}

	if !showMore {
		return required, nil
	}

	optional = make([]models.FieldDescriptor, 0, len(schema.Optional.NonSQL))
	for i := range schema.Optional.NonSQL {
		optional = append(optional, Describe(&schema.Optional.NonSQL[i], models.SectionOptional))
	}
	return required, optional
}

// RenderSQL lists the SQL editor entries in category order with their current text
func RenderSQL(schema *models.PropertySchema, sql map[string]string) []models.SQLField {
	fields := make([]models.SQLField, 0, schema.Optional.SQL.Len())
	for _, category := range models.SQLCategoryOrder {
		for _, p := range schema.Optional.SQL.Category(category) {
			fields = append(fields, models.SQLField{
				Name:     p.Name,
				Label:    p.Label(),
				Category: category,
				Value:    sql[p.Name],
			})
		}
	}
	return fields
}

// SeedSQL builds the SQL override map from the schema's stored statements
func SeedSQL(schema *models.PropertySchema) map[string]string {
	sql := make(map[string]string, schema.Optional.SQL.Len())
	for _, category := range models.SQLCategoryOrder {
		for _, p := range schema.Optional.SQL.Category(category) {
			if p.Value != nil {
				sql[p.Name] = *p.Value
			} else {
				sql[p.Name] = ""
			}
		}
	}
	return sql
}

// SeedFormValues returns the values a freshly rendered form submits before
// any edit: the initial value of every non-password field.
func SeedFormValues(schema *models.PropertySchema) map[string]string {
	values := make(map[string]string)
	seed := func(props []models.Property) {
		for i := range props {
			p := &props[i]
			if ResolveFieldType(p) == models.FieldTypePassword {
				continue
			}
			if v := p.InitialValue(); v != nil {
				values[p.Name] = *v
			}
		}
	}
	seed(schema.Required)
	seed(schema.Optional.NonSQL)
	return values
}
