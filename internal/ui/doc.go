// Package ui renders sync progress and handles terminal prompts.
//
// Two reporting sinks consume the [tasks.ProgressUpdate] channel of a sync pass:
//   - [Model] : a full-screen bubbletea view with a progress bar, spinner, running counters and a scrollback log
//   - [Reporter] : plain status lines for pipes, cron jobs and --no-progress
//
// The view owns the pass: Init starts the engine in a goroutine, and quitting cancels its context.
// The engine stops between items, so an interrupted run still leaves every finished file complete.
//
// [Prompter] reads credentials and two-step verification choices, hiding secrets when stdin is a terminal.
package ui
