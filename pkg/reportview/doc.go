// Package reportview keeps a live, filtered view of citizen reports.
//
// A View starts from a backend list, then patches itself from push events
// (created, status, like and comment counts) instead of refetching. Events
// for reports the view does not hold trigger a backfill fetch when they could
// belong to it. Fetches are coordinated so at most one is in flight, filter
// edits are debounced, and results for a superseded filter are dropped.
//
// A report the user just submitted can be staged through an
// OptimisticBuffer and is shown by the next view until the confirmed report
// carrying the same correlation marker arrives.
package reportview
