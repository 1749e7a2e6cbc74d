// Package storage is the persistence gateway for alert, report and schedule
// records.
//
// Documents are JSON-shaped: whatever the caller passes to Insert is encoded
// with encoding/json and stored as an object. Every stored document gets a
// string "id" (a UUID unless the caller set one) and a hidden insertion
// sequence used for ordering.
//
// Drivers:
//   - "memory": process-local, the default and the one tests use
//   - "file": memory plus one JSON Lines journal per collection
//   - "sqlite": modernc.org/sqlite, one table, json_extract filters
//   - "mongo": MongoDB, one collection per collection name
package storage
