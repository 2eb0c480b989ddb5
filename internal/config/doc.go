// Package config provides centralized configuration for the CicadaGallery
// client and the reference issuance service.
//
// # Configuration Sources
//
// Configuration is layered, later sources overriding earlier ones:
//
//	1. Default values
//	2. YAML file (config.yaml, configs/config.yaml, or CICADA_CONFIG_FILE)
//	3. Environment variables
//
// # Environment Variables
//
// All variables use the CICADA_ prefix followed by the section name:
//
//	CICADA_SERVER_PORT=8080
//	CICADA_LICENSE_ISSUANCE_URL=https://license.cicadagallery.app
//	CICADA_LICENSE_TIMEOUT=10s
//	CICADA_LOGGING_LEVEL=debug
//	CICADA_ISSUER_KEY_PASSPHRASE=...
//
// The license verification key is compiled into the binary and is never
// read from configuration.
package config
