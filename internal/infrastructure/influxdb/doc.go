// Package influxdb mirrors glove telemetry into time-series storage.
//
// It wraps the official influxdb-client-go v2 library for the three
// measurements the core exports:
//   - gesture confidence scores per device and user
//   - sensor reading rates per glove channel
//   - device connectivity transitions
//
// SQLite remains the system of record; the mirror is optional and the
// core operates fully without it.
//
// Writes go through the client's non-blocking batched API, so the
// ingest path never waits on the store. Batch failures surface only
// through the SetOnError callback; connection and health check errors
// are returned directly. All methods are safe for concurrent use.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteGestureMetric("GLV-0001", "usr-1a2b3c4d", "hello", 0.93)
package influxdb
