// Package guides registers the GIIS report types with the core registry.
// Import this package to ensure all guides are registered.
//
// Each guide file holds a pure mapper from one clinical record (plus its
// patient and professional) to a schema-complete row, and a build function
// that fetches the period's records through core.RecordSource.
package guides
