// Package notify delivers push notifications to environment members.
//
// FCM sends through Firebase Cloud Messaging multicast, batching tokens at
// the FCM limit, behind a circuit breaker so that an unreachable FCM does not
// stall sensor ingestion. LogNotifier is the stand-in when push delivery is
// disabled.
package notify
