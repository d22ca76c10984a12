// Package configs provides embedded configuration templates for quarry.
//
// Templates are embedded at build time with go:embed so they ship in
// every distribution. They are used by:
//   - cmd/quarry/cmd/init.go, which creates .quarry.yaml at the corpus root
//   - cmd/quarry/cmd/config.go, which creates the user config under
//     ~/.config/quarry/config.yaml
//
// Configuration precedence (see internal/config.Load):
//  1. Built-in defaults (internal/config.NewConfig)
//  2. User config (~/.config/quarry/config.yaml)
//  3. Corpus config (.quarry.yaml)
//  4. Environment variables (QUARRY_*)
package configs

import _ "embed"

// ProjectConfigTemplate is the template for corpus-level configuration,
// created by `quarry init` as .quarry.yaml at the corpus root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate is the template for machine-level configuration,
// created by `quarry config init` under ~/.config/quarry.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
