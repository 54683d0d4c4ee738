// Package meta describes record types: their fields, the logical types a
// field may hold, enumerations, indexes and the primary key.
//
// Metadata is declared once per record type with a Builder and kept in a
// Registry that is passed to the components needing it. A built Record is
// treated as immutable; storage engines resolve physical columns on a private
// copy obtained with Record.Clone.
//
// # Reference records
//
// A record type whose primary key is a single field typed as the record
// itself is a reference record. Its identity is an opaque generated 16-byte
// key rather than a natural key. Declaring no primary key at all yields a
// reference record with an implicit "id" field.
package meta
