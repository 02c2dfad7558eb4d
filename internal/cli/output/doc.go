// Package output renders command results as a table, JSON or YAML.
//
// Result types implement Tabular to control their table layout. Other
// values fall back to a generic rendering: maps become KEY/VALUE rows and
// slices of structs get one column per exported field.
package output
