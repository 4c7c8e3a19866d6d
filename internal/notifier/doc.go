// Package notifier posts calendar alerts to the channel.
//
// # Threshold alerts
//
// Notifier.Check runs on a short fixed cadence. For every upcoming event it
// evaluates each configured minute threshold n and fires when the event is
// between n-1 and n minutes away, plus a separate "started" alert during the
// first minute after the event time. Every alert is keyed by event id and tag
// ("{id}_t{n}", "{id}_started") in the state store, so each one is delivered at
// most once across restarts.
//
// Delivery happens before the key is recorded. A send failure leaves the key
// pending and the next cycle retries while the window is still open; a store
// failure aborts the cycle and is returned to the caller.
//
// # Weekly broadcast
//
// Weekly posts the whole filtered week once per ISO week slot. The slot is
// recorded in the same store ("weekly_2024-W02"), which makes the Monday cron
// job and the startup catch-up idempotent against each other.
//
// # Delivery
//
// Delivery wraps the transport with a token-bucket rate limit, bounded retries
// with jittered exponential backoff and a per-send timeout.
package notifier
