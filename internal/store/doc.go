// Package store implements the persistence ports of the export pipeline.
//
// Memory keeps everything in process and backs tests and single-node
// development. Postgres stores batches and audit entries in PostgreSQL
// through pgx and reads clinical records from the same database.
//
// Both implementations give BatchStore.Update read-modify-write atomicity:
// Memory under a mutex, Postgres with SELECT ... FOR UPDATE inside a
// transaction. Concurrent guide generation relies on it.
package store
