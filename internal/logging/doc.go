// Package logging configures structured logging for searchsync.
//
// Logs are JSON lines written through log/slog. The daemon (`searchsync run`)
// writes to ~/.searchsync/logs/searchsync.log with size-based rotation and
// mirrors everything to stderr. One-shot commands log to stderr only unless
// --debug is given.
package logging
