// Package config provides the run configuration of deadlink and the
// per-site settings read from the .deadlink YAML file.
package config
