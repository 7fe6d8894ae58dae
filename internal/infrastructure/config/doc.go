// Package config handles loading and validating Gray Logic IR Learn configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYLOGIC_* environment variables
//   - Validation of required fields, reporting every problem at once
//   - Default value handling
//
// Security Considerations:
//   - MQTT credentials and the InfluxDB token should come from the environment
//     (a .env file is loaded by the binary before Load runs)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/irlearn.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ReconcileDeadline())
package config
