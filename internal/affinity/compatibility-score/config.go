// internal/affinity/compatibility-score/config.go
package compatibilityscore

type Config struct {
	// MaxWorkers bounds the goroutines used to fill a score matrix.
	MaxWorkers int
}

func LoadConfig() *Config {
	return &Config{
		MaxWorkers: 8,
	}
}
