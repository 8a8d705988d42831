// Package webhooks delivers signed payment events to registered endpoints.
// Every try is a delivery attempt row; transient failures re-enter the retry
// ladder until the attempt ceiling, terminal failures dead-letter immediately.
package webhooks
