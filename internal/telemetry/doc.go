// Package telemetry ingests raw glove readings and gesture recognition
// results.
//
// Every incoming event is first attributed to a user by resolving the
// device's active binding; events from unbound devices are rejected
// before anything is written. Sensor events are stored row-per-event and
// are eligible for retention purging. Gesture results are stored in the
// same transaction as their learning record update and are never purged.
package telemetry
