// Contextualizer configuration re-exports.
//
// DESIGN: Pipeline tuning is defined in internal/contextualizer/config.go.
// This file re-exports those types for use by the main Config struct, which
// keeps the thresholds next to the stages that read them.
package config

import "github.com/compresr/semantic-context/internal/contextualizer"

// =============================================================================
// RE-EXPORTS FROM contextualizer PACKAGE
// =============================================================================

// ContextualizerConfig is an alias for contextualizer.Config.
type ContextualizerConfig = contextualizer.Config

// Classification is an alias for contextualizer.Classification.
type Classification = contextualizer.Classification

// DefaultContextualizerConfig - re-exported from contextualizer package.
var DefaultContextualizerConfig = contextualizer.DefaultConfig
