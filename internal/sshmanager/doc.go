// Package sshmanager runs remote tail sessions.
//
// A [Manager] owns the [Registry], the process-wide table mapping each
// endpoint to its single active [Target], and runs one tail loop per active
// endpoint on its own goroutine.
//
// # Session Lifecycle
//
//  1. Connecting/Authenticating: [Manager.StartTail] validates the request,
//     reserves the endpoint's next request sequence and returns a
//     [TailSession] handle; the loop then dials through sshconn.Connector. A
//     failure here publishes exactly one error event and the session never
//     enters the registry.
//
//  2. Executing: the loop starts "tail -n N -F path" via sshlogs.StartFollow.
//     Once the command runs, the session is put into the registry, evicting
//     any previous session on the same endpoint, and a connected event is
//     published. If a newer request for the endpoint was made meanwhile, the
//     registry refuses the session, which ends with a single cancelled
//     disconnected event.
//
//  3. Streaming: a pump goroutine copies the channel's stdout into a Go
//     channel. The loop waits on it for at most one poll interval, checks
//     that the registry still holds its session ID, feeds bytes to an
//     sshlogs.Reassembler and publishes one data event per line. Every
//     keepalive interval it sends keepalive@openssh.com on the connection;
//     no reply within the timeout ends the session with stream_error.
//
//  4. Draining/Terminated: on cancellation, EOF or a read error the loop
//     releases its registry entry (never a successor's) and publishes the
//     terminal event. A read error, a failed keepalive or a non-zero exit of
//     the follow command publishes an error event first.
//
// Stopping is cooperative: [Manager.StopTail] and [Manager.StopTailByPath]
// publish monitor-stopped and remove the registry entry under one lock. The
// loop sees the removal within one poll interval, so its disconnected event
// always follows monitor-stopped.
//
// # Events
//
// Loops publish [Event] values to a [Publisher]. [Hub] is the production
// publisher: it fans events out to subscribers and records lifecycle events
// in an [EventLog] ring buffer (last 100 per endpoint).
//
// # Guards
//
// [RateLimiter] refuses connection attempts to an endpoint that has seen too
// many attempts in the last minute, or too many consecutive failures.
// [HostPolicy] restricts which hosts may be dialed by IP/CIDR allow list.
// Neither retries anything.
//
// # State Tracking
//
// [StateTracker] records each session's transitions
// (connecting, authenticating, executing, streaming, draining, terminated)
// and fires callbacks on change.
//
// # Log Prefixes
//
// Tail loops log with [tail], the hub with [hub], and connection guards with
// [ssh].
package sshmanager
