// Package history persists a summary of every finished tail session.
//
// [Recorder] is registered as a session-end observer on the tail manager and
// writes one database.TailRecord per session: endpoint, path, termination
// reason, line counters and duration. Records are queryable with filters and
// pagination (newest first) and are purged by [SchedulePurge] once they are
// older than the retention period.
package history
