// Package learning maintains per-(user, gesture) practice statistics.
//
// Each ingested gesture result increments the pair's practice count,
// counts as a success when its confidence meets SuccessThreshold, and
// triggers a full recomputation of the average confidence from the stored
// gesture results. The recomputation happens inside the same transaction
// that inserted the result, so the statistics can never drift from the
// raw history and concurrent updates to the same pair cannot lose counts.
//
// Records are created lazily on a pair's first result and are never
// deleted by normal operation; retention cleanup of raw sensor telemetry
// does not touch them.
package learning
