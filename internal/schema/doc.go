// Package schema declares owner types in CUE.
//
// A schema directory holds one CUE package whose top-level "types" struct
// maps type names to field declarations:
//
//	package app
//
//	types: Server: {
//		docs: "An HTTP listener."
//		fields: {
//			host:    {type: "string", default: "localhost", tags: config: true}
//			port:    {type: "int", default: 8080, min: 1, max: 65535, tags: config: true}
//			mode:    {type: "string", default: "dev", enum: ["dev", "prod"]}
//			backlog: {type: "int", default_from: "port"}
//			id:      {type: "string", readonly: true}
//		}
//	}
//
// Field keys:
//
//   - type: one of int, float, string, bool, list, map, any (the default).
//     Int and float fields accept any numeric input that converts exactly.
//   - default: static default. List and map defaults are copied per object.
//   - default_from: the default is a copy of another field's value, read
//     when the field is first read.
//   - readonly: the field can only be set through initial values.
//   - min, max: inclusive numeric bounds.
//   - enum: the accepted values.
//   - tags: arbitrary metadata, queried with state.TagQuery.
//   - docs: documentation text.
//
// Declarations are checked against a closed CUE definition before they are
// compiled, so misspelled keys are errors with a file position.
package schema
