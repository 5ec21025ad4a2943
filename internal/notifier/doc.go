// Package notifier delivers operator messages to the administrator chat.
//
// Two message classes exist: alerts ("🚨 ALERT: ") and status updates
// ("ℹ️ STATUS: "). Each send is synchronous, paced by a token bucket and
// bounded by a timeout; failures are reported as *DeliveryError and are never
// retried here.
//
// A small in-memory history of delivered messages is kept for /status.
package notifier
