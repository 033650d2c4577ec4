// Package config loads, normalizes, and validates fitstogo configuration.
//
// Configuration is read from TOML (default ~/.config/fitstogo/config.toml) and
// decoded over repository defaults. Credentials left empty in the file fall back
// to the environment variable names used by the original deployment
// (GLM_API_KEY, KIE_AI_API_KEY, STRIPE_SECRET_KEY, DO_SPACES_*, REDIS_URL, ...),
// so a container can run without a config file at all.
package config
