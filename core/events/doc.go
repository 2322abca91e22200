// Package events defines the typed events that feed a session's intake
// queue. Transports, transcribers, and the function call broker all talk to
// the orchestrator by producing these values; the orchestrator consumes them
// on a single goroutine, which is what keeps turn handling ordered.
package events
