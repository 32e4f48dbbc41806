// Package events is the in-process signal bus that connects job completion to
// follow-up work.
//
// Publish assigns a sequence number and timestamp, keeps the event in a
// bounded history and calls every listener subscribed to the signal in
// subscription order on the publishing goroutine. A listener that returns an
// error or panics is logged and skipped; the remaining listeners still run.
package events
