// internal/affinity/group-former/config.go
package groupformer

import (
	"fmt"

	apperrors "office-affinity/internal/common/errors"
)

type Config struct {
	MinSize int
	MaxSize int
}

func LoadConfig() *Config {
	return &Config{
		MinSize: 2,
		MaxSize: 4,
	}
}

// Validate fails with CONFIGURATION_ERROR on unusable bounds.
func (c Config) Validate() error {
	if c.MinSize < 1 || c.MaxSize < 1 {
		return apperrors.NewConfigurationError(fmt.Sprintf(
			"group sizes must be positive (min=%d, max=%d)", c.MinSize, c.MaxSize))
	}
	if c.MinSize > c.MaxSize {
		return apperrors.NewConfigurationError(fmt.Sprintf(
			"minSize %d exceeds maxSize %d", c.MinSize, c.MaxSize))
	}
	return nil
}
