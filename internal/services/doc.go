// Package services defines the remote media library contract the sync engine reads from.
//
// # Source
//
// A [Source] exposes two collections: the main library ([Source.All]) and the trash
// ([Source.RecentlyDeleted]). It also opens transfer handles for individual renditions through
// [Source.Download].
//
// # Ordering
//
// [Collection] iterators must yield items newest-created first. The sync engine's until-found
// mode stops after a run of already-synced items and is only sound under that ordering.
//
// # Errors
//
// Transport failures are returned unwrapped so that [pacer.IsTransient] can classify them.
// Protocol failures wrap [shared.ErrAPIRequest]. A version with no endpoint yields [ErrNoURL],
// which the engine treats as a skip rather than a retryable failure.
//
// The iCloud implementation lives in the icloud subpackage.
package services
