// Package database manages the PostgreSQL pool behind the frame archive.
//
// The archive is optional: a livefeed process without a database host
// configured runs without it.
package database
