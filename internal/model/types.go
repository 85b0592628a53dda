// Package model defines shared data structures.
package model

import (
	"time"

	"github.com/verte-zerg/keyprint/internal/features"
)

// Config defines the resolved runtime settings.
type Config struct {
	Register RegisterConfig
	Identify IdentifyConfig
	Capture  CaptureConfig
	Log      LogConfig
}

// RegisterConfig defines registration settings.
type RegisterConfig struct {
	Samples       int     `validate:"min=1,max=20"`
	MinSimilarity float64 `validate:"min=0,max=1"`
}

// IdentifyConfig defines identification settings.
type IdentifyConfig struct {
	Matcher       string  `validate:"oneof=vote model"`
	TiePolicy     string  `validate:"oneof=all first"`
	MinConfidence float64 `validate:"min=0,max=1"`
	MinSimilarity float64 `validate:"min=0,max=1"`
}

// CaptureConfig defines where key events come from.
type CaptureConfig struct {
	Source  string        `validate:"oneof=tui evdev"`
	Device  string        `validate:"omitempty,filepath"`
	Text    string        `validate:"omitempty,filepath"`
	Timeout time.Duration `validate:"min=0"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	Level  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `validate:"oneof=text json"`
	Output string `validate:"required"`
}

// Sample is one stored registration sample.
type Sample struct {
	ID          string
	UserID      string
	DisplayName string
	CreatedAt   time.Time
	Source      string
	Features    features.FeatureVector
}

// UserSummary describes a registered user.
type UserSummary struct {
	UserID      string
	DisplayName string
	CreatedAt   time.Time
	Samples     int
}

// NewUser holds the fields needed to register a user.
type NewUser struct {
	UserID      string `validate:"required,userid"`
	DisplayName string `validate:"max=64"`
}
