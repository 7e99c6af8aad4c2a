package memory

import "time"

// Config controls Store behavior.
type Config struct {
	// MaxBlock caps how long a blocking XREADGROUP waits (default: 5s).
	MaxBlock time.Duration
	// Now supplies entry id timestamps (default: time.Now).
	Now func() time.Time
}

// ConfigFromMap reads max_block as a time.Duration or a duration string.
func ConfigFromMap(cfg map[string]any) Config {
	c := Config{MaxBlock: 5 * time.Second}
	switch v := cfg["max_block"].(type) {
	case time.Duration:
		c.MaxBlock = v
	case string:
		if p, err := time.ParseDuration(v); err == nil {
			c.MaxBlock = p
		}
	}
	return c
}
