package editor

import (
	"github.com/MeKo-Tech/pocrop/internal/corners"
	"github.com/MeKo-Tech/pocrop/internal/warp"
)

// Config holds the parameters a session needs from the application config.
type Config struct {
	Corners      corners.Config
	Warp         warp.Options
	HistoryDepth int
	// TempDir receives intermediate images; empty uses the system default.
	TempDir string
	// Quality is the JPEG quality of exported images.
	Quality int
}

// DefaultConfig returns session defaults.
func DefaultConfig() Config {
	return Config{
		Corners:      corners.DefaultConfig(),
		Warp:         warp.DefaultOptions(),
		HistoryDepth: 50,
		Quality:      95,
	}
}

// Option customises a session at Open.
type Option func(*Session)

// WithDisplayWidth sets the width at which the opened image is shown. Corner
// and crop coordinates are given in this space; the display keeps the same
// zoom when later operations change the image size.
func WithDisplayWidth(w float64) Option {
	return func(sess *Session) {
		if w > 0 {
			sess.requestedWidth = w
		}
	}
}
