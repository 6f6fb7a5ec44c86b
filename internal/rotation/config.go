package rotation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	dErrors "semear/pkg/domain-errors"
)

// Config is the rotation configuration shared by issuer and verifier. It is a
// value type with unexported fields: once built it cannot change, so a single
// verification always sees one consistent configuration.
//
// Issuer and wallet must be deployed with identical mode, salt and location.
// A mismatch is not detectable in-protocol; it shows up as credentials that
// fail ownership checks. Fingerprint gives operators something to compare.
type Config struct {
	mode     Mode
	salt     string
	depth    int
	location *time.Location
}

// Option customizes a Config.
type Option func(*Config)

// WithDepth overrides the mode's default history depth. Non-positive values
// keep the default.
func WithDepth(depth int) Option {
	return func(c *Config) {
		if depth > 0 {
			c.depth = depth
		}
	}
}

// WithLocation sets the time zone used for period labels. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		if loc != nil {
			c.location = loc
		}
	}
}

// NewConfig validates and builds a Config.
func NewConfig(mode Mode, salt string, opts ...Option) (Config, error) {
	if mode == "" {
		mode = DefaultMode
	}
	if !mode.Valid() {
		return Config{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown rotation mode %q", mode))
	}
	if strings.TrimSpace(salt) == "" {
		return Config{}, dErrors.New(dErrors.CodeInvalidInput, "rotation salt is required")
	}
	cfg := Config{
		mode:     mode,
		salt:     salt,
		depth:    mode.DefaultDepth(),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, nil
}

// MustConfig panics on invalid input; for tests and constants.
func MustConfig(mode Mode, salt string, opts ...Option) Config {
	cfg, err := NewConfig(mode, salt, opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c Config) Mode() Mode {
	return c.mode
}

func (c Config) Salt() string {
	return c.salt
}

func (c Config) Depth() int {
	return c.depth
}

// Location is the time zone labels are computed in.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// IsZero reports whether c was never built through NewConfig.
func (c Config) IsZero() bool {
	return c.mode == "" && c.salt == ""
}

// PeriodLabel returns the label of the bucket containing t.
func (c Config) PeriodLabel(t time.Time) string {
	return c.mode.Label(t.In(c.Location()))
}

// HistoricalLabels returns Depth labels starting at now's period and walking
// backwards one bucket at a time.
func (c Config) HistoricalLabels(now time.Time) []string {
	local := now.In(c.Location())
	labels := make([]string, 0, c.depth)
	for i := 0; i < c.depth; i++ {
		labels = append(labels, c.mode.Label(c.mode.Back(local, i)))
	}
	return labels
}

// Fingerprint is a short digest of every field that influences derivation.
// It never reveals the salt.
func (c Config) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		string(c.mode),
		c.salt,
		fmt.Sprint(c.depth),
		c.Location().String(),
	}, "\x1f")))
	return hex.EncodeToString(sum[:6])
}

// String omits the salt.
func (c Config) String() string {
	return fmt.Sprintf("rotation{mode=%s depth=%d tz=%s fp=%s}", c.mode, c.depth, c.Location(), c.Fingerprint())
}
