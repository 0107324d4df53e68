package models

import "fmt"

// PatchOperationReplace is the only operation emitted by the editor
const PatchOperationReplace = "REPLACE"

// PatchOperation is a single entry of a user store patch document
type PatchOperation struct {
	Operation string `json:"operation"`
	Path      string `json:"path"`
	Value     string `json:"value"`
}

// PropertyPath returns the patch path of a property
func PropertyPath(name string) string {
	return fmt.Sprintf("/properties/%s", name)
}

// NewReplaceOperation builds a REPLACE operation for the named property
func NewReplaceOperation(name, value string) PatchOperation {
	return PatchOperation{
		Operation: PatchOperationReplace,
		Path:      PropertyPath(name),
		Value:     value,
	}
}

// TestConnectionRequest is the payload of a JDBC connection test
type TestConnectionRequest struct {
	ConnectionURL      string `json:"connectionURL"`
	ConnectionPassword string `json:"connectionPassword"`
	DriverName         string `json:"driverName"`
	Username           string `json:"username"`
}
