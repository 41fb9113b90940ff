// Package config provides configuration types and persistence for the
// control-plane server.
//
// Two surfaces live here:
//
//   - Config and its Load/Default helpers: the typed, file-backed server
//     configuration (YAML or JSON, auto-detected by extension).
//   - Store: the dot-path key-value store consumed by plugins and the
//     plugin host for runtime-persisted settings such as the disabled
//     plugin list. Store values survive restarts via Save.
//
// Configuration is loaded once at startup and passed down explicitly;
// nothing in this package is a process-wide singleton.
package config
