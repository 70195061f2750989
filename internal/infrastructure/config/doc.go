// Package config handles loading and validating pin core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (PINCORE_*)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT password, JWT secret, InfluxDB token) should be
// supplied through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
