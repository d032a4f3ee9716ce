// Package config handles loading and validating lock bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The lock account password and JWT secret should be set via
//     environment variables (GRAYLOGIC_LOCK_PASSWORD, GRAYLOGIC_JWT_SECRET)
//   - The config file should have restricted permissions (0600)
//   - LockConfig redacts the password in String and MarshalJSON
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Lock.GetPollInterval())
package config
