// Package models defines domain entities and persistence interfaces for phx.
//
// The package contains two categories of types:
//
// 1. Remote library values: read-only descriptions of what the remote source holds
//   - [RemoteItem] : one asset with its renditions and raw record fields
//   - [Version] : a downloadable rendition of an asset
//   - [Rendition] and [Kind] : size and media-type enumerations
//
// 2. Persistent Entities: database-backed audit records
//   - [SyncRun] : one sync pass with its outcome counters
//   - [ItemFailure] : an item abandoned during a run
//
// Persistent entities implement [Record]; [Repository] defines their CRUD operations.
package models
