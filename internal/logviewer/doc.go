// Package logviewer is the command surface of the backend: connection test,
// read-now, log discovery, start and stop of tails, and saved connection
// profiles. HTTP handlers translate requests into calls on [Service] and the
// connection helpers.
package logviewer
