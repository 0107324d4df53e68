package userstore

import (
	"errors"
	"fmt"

	"github.com/iamconsole/backend-go/internal/models"
)

var (
	// ErrMissingRequired is returned when a required property has no submitted value
	ErrMissingRequired = errors.New("required property has no value")
	// ErrUnknownProperty is returned for edits naming a property outside the schema
	ErrUnknownProperty = errors.New("unknown property")
)

// BuildPatch assembles the REPLACE operations sent to the user store update endpoint.
//
// Required properties always produce an operation and must have a value.
// Optional properties are only included when showMore is set: non-SQL ones
// take their value from formValues, SQL ones from sqlOverrides, in the order
// delete, insert, update, select.
func BuildPatch(schema *models.PropertySchema, formValues, sqlOverrides map[string]string, showMore bool) ([]models.PatchOperation, error) {
	ops := make([]models.PatchOperation, 0, len(schema.Required))

	for _, p := range schema.Required {
		value, ok := formValues[p.Name]
		if !ok || value == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingRequired, p.Label())
		}
		ops = append(ops, models.NewReplaceOperation(p.Name, value))
	}

	if !showMore {
		return ops, nil
	}

	for _, p := range schema.Optional.NonSQL {
		ops = append(ops, models.NewReplaceOperation(p.Name, formValues[p.Name]))
	}

	for _, category := range models.SQLCategoryOrder {
		for _, p := range schema.Optional.SQL.Category(category) {
			ops = append(ops, models.NewReplaceOperation(p.Name, sqlOverrides[p.Name]))
		}
	}

	return ops, nil
}
