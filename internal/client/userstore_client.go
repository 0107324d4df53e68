package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/iamconsole/backend-go/internal/models"
)

// UserstoresPath is the user store API root relative to the server host
const UserstoresPath = "/api/server/v1/userstores"

// sqlPropertyType is the type attribute the server puts on SQL statements
const sqlPropertyType = "sql"

type userstoreResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TypeID      string `json:"typeId"`
	TypeName    string `json:"typeName"`
	ClassName   string `json:"className"`
	Properties  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"properties"`
}

type typeMetaResponse struct {
	TypeID     string `json:"typeId"`
	TypeName   string `json:"typeName"`
	ClassName  string `json:"className"`
	Properties struct {
		Mandatory []models.Property `json:"Mandatory"`
		Optional  []models.Property `json:"Optional"`
		Advanced  []models.Property `json:"Advanced"`
	} `json:"properties"`
}

type testConnectionResponse struct {
	Connection *bool `json:"connection"`
}

// UserstoreType is a user store meta type together with its property schema
type UserstoreType struct {
	models.UserstoreType
	Properties models.PropertySchema `json:"properties"`
}

// UserstoreClient is the identity server's user store API
type UserstoreClient struct {
	rest *RestClient
}

// NewUserstoreClient creates a user store API client
func NewUserstoreClient(rest *RestClient) *UserstoreClient {
	return &UserstoreClient{rest: rest}
}

// GetUserStoreType loads a meta type and partitions its properties into
// required, optional non-SQL and the four SQL categories
func (c *UserstoreClient) GetUserStoreType(ctx context.Context, typeID string) (*UserstoreType, error) {
	var meta typeMetaResponse
	path := UserstoresPath + "/meta/types/" + url.PathEscape(typeID)
	if err := c.rest.Get(ctx, "get_userstore_type", path, &meta); err != nil {
		return nil, fmt.Errorf("failed to get userstore type %s: %w", typeID, err)
	}

	schema := models.PropertySchema{Required: meta.Properties.Mandatory}
	for _, group := range [][]models.Property{meta.Properties.Optional, meta.Properties.Advanced} {
		for _, p := range group {
			if p.Type() != sqlPropertyType {
				schema.Optional.NonSQL = append(schema.Optional.NonSQL, p)
				continue
			}
			switch classifySQL(p.Name) {
			case models.SQLCategoryDelete:
				schema.Optional.SQL.Delete = append(schema.Optional.SQL.Delete, p)
			case models.SQLCategoryInsert:
				schema.Optional.SQL.Insert = append(schema.Optional.SQL.Insert, p)
			case models.SQLCategoryUpdate:
				schema.Optional.SQL.Update = append(schema.Optional.SQL.Update, p)
			default:
				schema.Optional.SQL.Select = append(schema.Optional.SQL.Select, p)
			}
		}
	}

	return &UserstoreType{
		UserstoreType: models.UserstoreType{
			TypeID:    meta.TypeID,
			TypeName:  meta.TypeName,
			ClassName: meta.ClassName,
		},
		Properties: schema,
	}, nil
}

// GetUserStoreTypeName resolves the type name of a meta type
func (c *UserstoreClient) GetUserStoreTypeName(ctx context.Context, typeID string) (string, error) {
	typ, err := c.GetUserStoreType(ctx, typeID)
	if err != nil {
		return "", err
	}
	return typ.TypeName, nil
}

// GetUserStore loads a user store and overlays its stored property values on
// the property schema of its type
func (c *UserstoreClient) GetUserStore(ctx context.Context, id string) (*models.Userstore, error) {
	var resp userstoreResponse
	if err := c.rest.Get(ctx, "get_userstore", UserstoresPath+"/"+url.PathEscape(id), &resp); err != nil {
		return nil, fmt.Errorf("failed to get userstore %s: %w", id, err)
	}

	typ, err := c.GetUserStoreType(ctx, resp.TypeID)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(resp.Properties))
	for _, p := range resp.Properties {
		values[p.Name] = p.Value
	}

	schema := typ.Properties
	applyValues(schema.Required, values)
	applyValues(schema.Optional.NonSQL, values)
	for _, category := range models.SQLCategoryOrder {
		applyValues(schema.Optional.SQL.Category(category), values)
	}

	typeName := resp.TypeName
	if typeName == "" {
		typeName = typ.TypeName
	}

	return &models.Userstore{
		ID:          resp.ID,
		Name:        resp.Name,
		Description: resp.Description,
		TypeID:      resp.TypeID,
		TypeName:    typeName,
		ClassName:   resp.ClassName,
		Properties:  schema,
	}, nil
}

// PatchUserStore sends a patch document. It is never retried.
func (c *UserstoreClient) PatchUserStore(ctx context.Context, id string, ops []models.PatchOperation) error {
	if err := c.rest.Send(ctx, "patch_userstore", http.MethodPatch, UserstoresPath+"/"+url.PathEscape(id), ops, nil); err != nil {
		return fmt.Errorf("failed to patch userstore %s: %w", id, err)
	}
	return nil
}

// TestConnection asks the identity server to connect to a JDBC datastore.
// It is never retried.
func (c *UserstoreClient) TestConnection(ctx context.Context, req models.TestConnectionRequest) error {
	var resp testConnectionResponse
	if err := c.rest.Send(ctx, "test_connection", http.MethodPost, UserstoresPath+"/test-connection", req, &resp); err != nil {
		return fmt.Errorf("failed to test connection: %w", err)
	}
	if resp.Connection != nil && !*resp.Connection {
		return ErrConnectionRejected
	}
	return nil
}

// applyValues writes stored values into the slice in place
func applyValues(props []models.Property, values map[string]string) {
	for i := range props {
		if v, ok := values[props[i].Name]; ok {
			props[i].Value = models.StringPtr(v)
		}
	}
}

// classifySQL derives the SQL category of a statement from its property name
func classifySQL(name string) models.SQLCategory {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "delete") || strings.Contains(lower, "remove"):
		return models.SQLCategoryDelete
	case strings.Contains(lower, "add") || strings.Contains(lower, "insert") || strings.Contains(lower, "create"):
		return models.SQLCategoryInsert
	case strings.Contains(lower, "update") || strings.Contains(lower, "change"):
		return models.SQLCategoryUpdate
	default:
		return models.SQLCategorySelect
	}
}
