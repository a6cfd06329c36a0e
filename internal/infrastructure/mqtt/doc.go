// Package mqtt wraps paho.mqtt.golang for the glove telemetry bus.
//
// Glove Link uses MQTT as the ingest bus connecting the Core to the
// edge gateways that front the physical gloves. The broker (Mosquitto)
// decouples the Core from glove firmware and transport details.
//
//	Gloves / Edge Gateway ↔ MQTT Broker ↔ Glove Core
//
// The client keeps its own subscription registry and replays it after
// every reconnect, announces core liveness on glovelink/system/status
// (with a Last Will for unexpected disconnects), and recovers panicking
// message handlers.
//
// TLS is opt-in via config; plain TCP with anonymous access is for
// local development only. Payloads are JSON and capped at 1MB.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	// Subscribe to sensor readings from every glove
//	err = client.Subscribe(mqtt.Topics{}.AllSensorTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        return ingest(topic, payload)
//	    })
//
//	// Republish an accepted gesture result
//	topic := mqtt.Topics{}.CoreGestureResult("GLV-0001")
//	client.Publish(topic, []byte(`{"gesture":"hello"}`), 1, false)
package mqtt
