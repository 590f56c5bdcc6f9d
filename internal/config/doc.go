// SPDX-License-Identifier: MPL-2.0

// Package config loads appboot's project configuration using Viper with CUE as the file format.
//
// Configuration is read from appboot.cue in the project directory, or from an explicit
// file passed with --config. Values are validated against an embedded CUE schema
// (config_schema.cue), merged over the defaults and finally overridden by APPBOOT_*
// environment variables.
package config
