// Package tasks runs the sync pass that mirrors a remote photo library into a storage backend.
//
// # Sync Engine
//
// [SyncEngine.Run] walks the main collection one item at a time:
//
//  1. Items that are not photos are skipped unless videos were requested.
//  2. The date album (YYYY/MM/DD) is resolved, creating it except in dry-run mode.
//  3. Metadata is decoded and a pending destination item is built.
//  4. If the item already exists nothing is downloaded.
//  5. A missing rendition falls back to the original exactly once, unless the size is forced.
//  6. The rendition is downloaded and streamed into the destination.
//
// Steps 2 through 6 run inside the retry envelope, so a connection failure anywhere restarts the
// item from the top. The download in step 6 has its own envelope; when it gives up, the item is
// counted as failed and the loop moves on.
//
// # Traversal Modes
//
//   - all: every item, with a known total
//   - recent N: the first N items, no early stop
//   - until-found N: unknown total; stops after N consecutive items that already existed
//
// Until-found is only sound because the source yields items newest first.
//
// # Cleanup
//
// With AutoDelete set, items in the remote trash are removed from the destination. Albums are
// never created during cleanup and the pass is not retried.
//
// # Progress Reporting
//
// Updates are sent with select/default so a slow consumer never blocks a transfer.
package tasks
