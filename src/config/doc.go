// Package config defines the configuration of a lockstep host and its
// default values.
package config
