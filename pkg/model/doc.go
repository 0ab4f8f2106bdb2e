// Package model defines the static form definition consumed by the form state
// engine: fields (scalars and row groups), ordered validation rules, effect
// descriptors and row-span configs. A Definition is authored once (in Go, or
// loaded through pkg/definition and pkg/openapi) and compiled into a Schema,
// the read-only index every runtime component resolves keys against.
//
// Keys come in three shapes:
//
//   - "country": a top-level field id.
//   - "items[3f2a...].price": a row group cell (CellKey), row key + child id.
//   - "items.price": a column reference, valid only in effect Sources and
//     Effected lists, matching the child field across all rows.
//
// Validation rules keep their thresholds in Params["value"] and regular
// expressions in Params["pattern"] so definitions serialise deterministically.
package model
