// Package staging bulk-loads a chunk of records into a transaction-scoped
// holding table.
//
// Each chunk gets its own TEMPORARY table, created with ON COMMIT DROP and the
// same primary key as the permanent store, so two records with the same
// natural key in one chunk fail the load. The table disappears when the
// enclosing transaction commits or rolls back; nothing outlives the chunk.
package staging
