// Package notifier delivers plain-text notifications to addresses.
//
// An address selects its transport by scheme: "telegram:<chat_id>" goes to
// the Telegram bot, anything containing "@" (or "mailto:") goes to SMTP. The
// Router maps schemes to Senders.
//
// # Delivery
//
// Service wraps a Sender with a token-bucket rate limit, bounded retries with
// exponential backoff and jitter, and a per-send timeout. Send is synchronous
// and used by the dispatcher. Notify queues a message for the worker pool and
// suppresses duplicates inside a short window; log forwarding uses it.
//
// # History
//
// For operator visibility the service keeps a small in-memory history of
// recent deliveries.
package notifier
