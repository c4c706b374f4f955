// Package studio holds the editable QR request and the debounced pipeline
// that regenerates its preview and exports it.
package studio

import (
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"prettyqr/internal/engine/qr"
	"prettyqr/internal/engine/render"
	"prettyqr/internal/platform/config"
)

const (
	DefaultModuleColor     = "#ffffff"
	DefaultBackgroundColor = "#000000"
	DefaultPixelSize       = 256
	DefaultMaxPayload      = 800
	DefaultMinSize         = 128
	DefaultMaxSize         = 512
	DefaultDelay           = 500 * time.Millisecond
)

// Request fully determines a rendered artifact.
type Request struct {
	Payload               string `json:"payload" yaml:"payload"`
	ModuleColor           string `json:"module_color" yaml:"module_color"`
	BackgroundColor       string `json:"background_color" yaml:"background_color"`
	TransparentBackground bool   `json:"transparent_background" yaml:"transparent_background"`
	PixelSize             int    `json:"pixel_size" yaml:"pixel_size"`
}

// Patch is a partial Request. Nil fields are left unchanged.
type Patch struct {
	Payload               *string `json:"payload,omitempty" yaml:"payload,omitempty"`
	ModuleColor           *string `json:"module_color,omitempty" yaml:"module_color,omitempty"`
	BackgroundColor       *string `json:"background_color,omitempty" yaml:"background_color,omitempty"`
	TransparentBackground *bool   `json:"transparent_background,omitempty" yaml:"transparent_background,omitempty"`
	PixelSize             *int    `json:"pixel_size,omitempty" yaml:"pixel_size,omitempty"`
}

func (r Request) Apply(p Patch) Request {
	if p.Payload != nil {
		r.Payload = *p.Payload
	}
	if p.ModuleColor != nil {
		r.ModuleColor = *p.ModuleColor
	}
	if p.BackgroundColor != nil {
		r.BackgroundColor = *p.BackgroundColor
	}
	if p.TransparentBackground != nil {
		r.TransparentBackground = *p.TransparentBackground
	}
	if p.PixelSize != nil {
		r.PixelSize = *p.PixelSize
	}
	return r
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Payload == nil && p.ModuleColor == nil && p.BackgroundColor == nil &&
		p.TransparentBackground == nil && p.PixelSize == nil
}

// Settings are the fixed parameters of a pipeline.
type Settings struct {
	Defaults   Request
	MaxPayload int
	MinSize    int
	MaxSize    int
	Margin     int
	Level      qr.Level
	Delay      time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Defaults: Request{
			ModuleColor:           DefaultModuleColor,
			BackgroundColor:       DefaultBackgroundColor,
			TransparentBackground: true,
			PixelSize:             DefaultPixelSize,
		},
		MaxPayload: DefaultMaxPayload,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
		Margin:     render.DefaultMargin,
		Level:      qr.LevelMedium,
		Delay:      DefaultDelay,
	}
}

// Normalize truncates the payload to MaxPayload runes and clamps the pixel
// size to [MinSize, MaxSize].
func (s Settings) Normalize(r Request) Request {
	if s.MaxPayload > 0 && utf8.RuneCountInString(r.Payload) > s.MaxPayload {
		runes := []rune(r.Payload)
		r.Payload = string(runes[:s.MaxPayload])
	}
	if r.PixelSize < s.MinSize {
		r.PixelSize = s.MinSize
	}
	if s.MaxSize > 0 && r.PixelSize > s.MaxSize {
		r.PixelSize = s.MaxSize
	}
	return r
}

// lightColor picks the light-module color for a format. Raster and vector
// output spell "no color" differently.
func lightColor(r Request, f Format) string {
	if !r.TransparentBackground {
		return r.BackgroundColor
	}
	if f == FormatVector {
		return render.TransparentKeyword
	}
	return render.TransparentHex
}

// SettingsFromConfig builds Settings from the studio config section. Zero
// values fall back to the defaults.
func SettingsFromConfig(cfg config.StudioConfig) (Settings, error) {
	s := DefaultSettings()

	if cfg.Debounce > 0 {
		s.Delay = cfg.Debounce
	}
	if cfg.MaxPayload > 0 {
		s.MaxPayload = cfg.MaxPayload
	}
	if cfg.MinSize > 0 {
		s.MinSize = cfg.MinSize
	}
	if cfg.MaxSize > 0 {
		s.MaxSize = cfg.MaxSize
	}
	if s.MinSize > s.MaxSize {
		return Settings{}, errors.Errorf("min_size %d exceeds max_size %d", s.MinSize, s.MaxSize)
	}
	if cfg.Margin > 0 {
		s.Margin = cfg.Margin
	}
	if cfg.DefaultSize > 0 {
		s.Defaults.PixelSize = cfg.DefaultSize
	}
	if cfg.DefaultModuleColor != "" {
		s.Defaults.ModuleColor = cfg.DefaultModuleColor
	}
	if cfg.DefaultBackgroundColor != "" {
		s.Defaults.BackgroundColor = cfg.DefaultBackgroundColor
	}
	for _, c := range []string{s.Defaults.ModuleColor, s.Defaults.BackgroundColor} {
		if _, err := render.ParseColor(c); err != nil {
			return Settings{}, errors.Wrap(err, "default color")
		}
	}
	if cfg.ErrorCorrection != "" {
		level, err := qr.ParseLevel(cfg.ErrorCorrection)
		if err != nil {
			return Settings{}, err
		}
		s.Level = level
	}

	return s, nil
}
