// Package config handles loading and validating the alarm node configuration.
//
// This package manages:
//   - Loading configuration from a YAML file
//   - Overriding with environment variables
//   - Validation of infrastructure settings
//   - Default value handling
//
// The entity/device declarations in the same document are passed through
// untouched; validating them (topic uniqueness, pin uniqueness, device
// references) is the entity compiler's responsibility so that every
// violation can be reported at once.
//
// Security Considerations:
//   - Sensitive values (broker password, telemetry token) should be set via
//     environment variables rather than the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry, err := entity.Compile(cfg.EntityDocument())
package config
