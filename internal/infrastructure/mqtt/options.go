package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/glovelink/glove-core/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout bounds the initial broker handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds waits for publish and subscribe acks.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is how long, in milliseconds, the paho
	// client drains in-flight messages before closing the connection.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the PINGREQ interval used to detect dead links.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the highest MQTT QoS level.
	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions translates glovecore MQTT config into paho client
// options: broker URL, client identity, credentials, reconnect backoff,
// and TLS when enabled.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// No persistent session on the broker. Subscriptions are replayed
	// from our own registry on every reconnect, so queued offline
	// delivery buys nothing here.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT registers the Last Will on glovelink/system/status so the
// broker announces an unexpected core disconnect. QoS 1, retained, so
// gloves and dashboards that subscribe later still see the last state.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
	opts.SetWill(Topics{}.SystemStatus(), willPayload, 1, true)
}

// buildOnlinePayload is the status message announced after each
// successful (re)connect.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload is the status message announced on graceful
// shutdown, distinguishing it from the LWT's unexpected_disconnect.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}
