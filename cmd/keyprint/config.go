package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *string) error {
	if value == nil {
		return nil
	}
	if cmd.Flags().Changed(name) {
		return nil
	}
	parsed, err := time.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("invalid %s in config: %w", name, err)
	}
	*target = parsed
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# keyprint configuration
# Uncomment a value to enable it. CLI flags override config values.

[register]
# samples = %d                # Samples captured per registration
# min-similarity = %.1f       # Share of the prompt that must be typed correctly (0-1)

[identify]
# matcher = %q            # "vote" or "model"
# tie-policy = %q           # "all" votes for every tied user, "first" for the earliest registered
# min-confidence = %.1f       # Model matcher threshold (0-1)
# min-similarity = %.1f       # Share of the prompt that must be typed correctly (0-1)

[capture]
# source = %q               # "tui" or "evdev" (Linux, needs read access to /dev/input)
# device = ""                 # evdev device; empty picks the first keyboard
# text = ""                   # Prompt file, or a name under the prompts directory
# timeout = %q             # evdev time limit per sample; "0s" disables

[log]
# level = %q               # trace, debug, info, warn, error
# format = %q              # "text" or "json"
# output = %q            # "stderr", "stdout" or a file path
`,
		defaultSamples,
		defaultRegisterSimilarity,
		defaultMatcher,
		defaultTiePolicy,
		defaultMinConfidence,
		defaultIdentifySimilarity,
		defaultSource,
		defaultTimeout.String(),
		defaultLogLevel,
		defaultLogFormat,
		defaultLogOutput,
	)
}
