// Package lookup serves a searchable option list in the shape remote form
// fields read. By default a response is {"data":[{"value":...,"label":...}]};
// Shape moves the list and renames the item fields so the handler can match
// an existing endpoint contract. Entry attributes travel as extra item fields
// and reach the form as Choice.Data.
//
// Requests may narrow the list by attribute: every name passed to WithFilters
// is read from the query string and must equal the entry attribute of the
// same name. Component.RemoteConfig returns the endpoint config a form field
// uses to read the list, with the filters sent as dynamic params.
package lookup
