// Package config resolves the runtime's configuration.
//
// Values layer from three sources, lowest to highest: built-in
// defaults, an optional YAML file, and CHATRT_-prefixed environment
// variables. A variable maps to the lowercased key, so
// CHATRT_ENVIRONMENT=staging selects the staging endpoint set and
// CHATRT_CHAT_URL overrides chat_url directly.
//
// The environment picks a built-in endpoint set; explicit endpoint
// values always win over it:
//
//	environment: staging
//	timeout: 45s
//	log_level: debug
package config
