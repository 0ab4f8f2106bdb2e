// Package openapi derives form definitions from OpenAPI 3 operations. The
// request body schema of an operation becomes the form's fields: scalar
// properties map to typed fields, arrays of objects map to row groups and the
// `x-endpoint` extension configures remote lookups.
package openapi
