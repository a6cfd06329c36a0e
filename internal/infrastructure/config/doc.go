// Package config loads and validates the Glove Core configuration.
//
// Values layer up from built-in defaults, then the YAML file, then
// GLOVECORE_* environment variables. Validation runs once at startup
// and refuses configurations that cannot run safely, most importantly
// a missing or short JWT secret.
//
// Secrets (JWT secret, MQTT password, InfluxDB token) belong in the
// environment, not the file; the file itself should be mode 0600.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
