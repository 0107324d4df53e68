package models

import (
	"strings"
)

// JDBCTypeMarker marks user store types backed by a JDBC datasource
const JDBCTypeMarker = "JDBC"

// Property type attribute values
const (
	PropertyTypePassword = "password"
	PropertyTypeBoolean  = "boolean"
	PropertyTypeText     = "text"
)

// Property names used when testing a JDBC connection
const (
	PropertyPassword   = "password"
	PropertyURL        = "url"
	PropertyDriverName = "driverName"
	PropertyUserName   = "userName"
)

// PropertyAttribute is a name/value pair attached to a user store property
type PropertyAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Property represents a single connection property of a user store
type Property struct {
	Name         string              `json:"name" validate:"required"`
	Value        *string             `json:"value,omitempty"`
	DefaultValue *string             `json:"defaultValue,omitempty"`
	Description  string              `json:"description"`
	Attributes   []PropertyAttribute `json:"attributes"`
}

// Attribute returns the value of the named attribute and whether it was found
func (p *Property) Attribute(name string) (string, bool) {
	for _, attr := range p.Attributes {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Type returns the rendering type declared by the "type" attribute
func (p *Property) Type() string {
	t, _ := p.Attribute("type")
	return t
}

// InitialValue returns the stored value, falling back to the default value
func (p *Property) InitialValue() *string {
	if p.Value != nil {
		return p.Value
	}
	return p.DefaultValue
}

// Label returns the human readable part of the description (before the first '#')
func (p *Property) Label() string {
	label, _, _ := strings.Cut(p.Description, "#")
	return label
}

// SQLProperties groups the optional SQL statements of a user store by category
type SQLProperties struct {
	Insert []Property `json:"insert"`
	Update []Property `json:"update"`
	Delete []Property `json:"delete"`
	Select []Property `json:"select"`
}

// SQLCategory names a group of SQL properties
type SQLCategory string

const (
	SQLCategoryDelete SQLCategory = "delete"
	SQLCategoryInsert SQLCategory = "insert"
	SQLCategoryUpdate SQLCategory = "update"
	SQLCategorySelect SQLCategory = "select"
)

// SQLCategoryOrder is the order SQL categories appear in patches and editors
var SQLCategoryOrder = []SQLCategory{
	SQLCategoryDelete,
	SQLCategoryInsert,
	SQLCategoryUpdate,
	SQLCategorySelect,
}

// Category returns the properties of a given SQL category
func (s *SQLProperties) Category(c SQLCategory) []Property {
	switch c {
	case SQLCategoryDelete:
		return s.Delete
	case SQLCategoryInsert:
		return s.Insert
	case SQLCategoryUpdate:
		return s.Update
	case SQLCategorySelect:
		return s.Select
	default:
		return nil
	}
}

// Len returns the number of SQL properties across all categories
func (s *SQLProperties) Len() int {
	return len(s.Delete) + len(s.Insert) + len(s.Update) + len(s.Select)
}

// OptionalProperties holds the optional part of a property schema
type OptionalProperties struct {
	NonSQL []Property    `json:"nonSql"`
	SQL    SQLProperties `json:"sql"`
}

// PropertySchema partitions the connection properties of a user store
type PropertySchema struct {
	Required []Property         `json:"required"`
	Optional OptionalProperties `json:"optional"`
}

// HasOptional reports whether any optional category is non-empty
func (s *PropertySchema) HasOptional() bool {
	return len(s.Optional.NonSQL) > 0 || s.Optional.SQL.Len() > 0
}

// FindRequired looks up a required property by name
func (s *PropertySchema) FindRequired(name string) (*Property, bool) {
	for i := range s.Required {
		if s.Required[i].Name == name {
			return &s.Required[i], true
		}
	}
	return nil, false
}

// IsSQLProperty reports whether name belongs to one of the SQL categories
func (s *PropertySchema) IsSQLProperty(name string) bool {
	for _, c := range SQLCategoryOrder {
		for _, p := range s.Optional.SQL.Category(c) {
			if p.Name == name {
				return true
			}
		}
	}
	return false
}

// IsOptionalNonSQL reports whether name is an optional non-SQL property
func (s *PropertySchema) IsOptionalNonSQL(name string) bool {
	for _, p := range s.Optional.NonSQL {
		if p.Name == name {
			return true
		}
	}
	return false
}

// UserstoreType describes the meta type of a user store
type UserstoreType struct {
	TypeID    string `json:"typeId"`
	TypeName  string `json:"typeName"`
	ClassName string `json:"className,omitempty"`
}

// IsJDBC reports whether the type is backed by a JDBC datasource
func (t UserstoreType) IsJDBC() bool {
	return strings.Contains(t.TypeName, JDBCTypeMarker)
}

// Userstore is the user store resource returned by the identity server
type Userstore struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	TypeID      string         `json:"typeId"`
	TypeName    string         `json:"typeName"`
	ClassName   string         `json:"className,omitempty"`
	Properties  PropertySchema `json:"properties"`
}

// Type returns the meta type of the user store
func (u *Userstore) Type() UserstoreType {
	return UserstoreType{
		TypeID:    u.TypeID,
		TypeName:  u.TypeName,
		ClassName: u.ClassName,
	}
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
