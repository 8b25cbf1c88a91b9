// Package configs embeds the configuration template written by
// `searchsync config init`.
//
// To change the template, edit searchsync.example.yaml and rebuild.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented starter configuration with one
// SQLite entity. It decodes to the same settings as config.Example().
//
//go:embed searchsync.example.yaml
var ProjectConfigTemplate string
