// Package notifier delivers short status messages to an ntfy-style HTTP
// endpoint (POST <server>/<topic>).
//
// Delivery is best effort. Each message is rate limited, deduplicated within a
// short window and sent with a bounded timeout; failures are logged and
// returned, and callers are expected to drop them. A small in-memory history
// of sent messages is kept for diagnostics.
package notifier
