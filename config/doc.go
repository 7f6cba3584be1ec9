// Package config parses the executor section of a node configuration
// file. It only translates YAML into engine names and heap strategies;
// execution semantics live in the executor and engine packages.
package config
