// Package database stores crawl runs in SQLite so that later runs can be
// compared against earlier ones.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
//  1. No external dependencies - the database is a single file
//  2. CGO-free implementation allows easy cross-compilation
//  3. WAL mode lets a compare run read while a crawl writes
package database
