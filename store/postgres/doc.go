// Package postgres implements the store using pgx/v5 with raw SQL.
// Record claims use guarded single-statement writes (INSERT with a
// unique key, UPDATE with a status predicate) so compare-and-set needs
// no explicit transactions. Schema setup runs from embedded SQL
// migrations.
package postgres
