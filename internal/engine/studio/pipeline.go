package studio

import (
	"bytes"
	"image/color"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"prettyqr/internal/engine/render"
)

var (
	ErrEmptyPayload = errors.New("payload is empty")
	ErrClosed       = errors.New("pipeline closed")
)

const subscriberBuffer = 16

// Pipeline owns one Request and its latest Artifact. Updates are debounced:
// each Update cancels the pending regeneration and schedules a new one after
// Settings.Delay.
type Pipeline struct {
	encoder  *render.Encoder
	settings Settings
	clock    clockwork.Clock
	log      zerolog.Logger
	hook     func(Event)

	mu       sync.Mutex
	req      Request
	artifact *Artifact
	timer    clockwork.Timer
	// version changes with every request mutation; renders started on an
	// older version are discarded.
	version  uint64
	timerSeq uint64
	renders  uint64
	subs     map[chan Event]struct{}
	closed   bool
}

type Option func(p *Pipeline)

func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithEventHook registers fn to observe every event. fn runs with the
// pipeline locked and must not call back into it.
func WithEventHook(fn func(Event)) Option {
	return func(p *Pipeline) {
		p.hook = fn
	}
}

func New(encoder *render.Encoder, settings Settings, opts ...Option) *Pipeline {
	p := &Pipeline{
		encoder:  encoder,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		log:      log.Logger,
		subs:     make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.req = settings.Normalize(settings.Defaults)
	return p
}

func (p *Pipeline) Request() Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req
}

// Artifact returns the latest preview, or nil when there is none.
func (p *Pipeline) Artifact() *Artifact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.artifact
}

// Update merges patch into the request and schedules a regeneration.
func (p *Pipeline) Update(patch Patch) Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.req
	}

	p.req = p.settings.Normalize(p.req.Apply(patch))
	p.version++
	p.schedule()
	return p.req
}

// Generate renders the preview immediately. A pending debounced
// regeneration is left in place.
func (p *Pipeline) Generate() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	req, version := p.req, p.version
	p.mu.Unlock()

	if req.Payload == "" {
		return nil
	}
	return p.renderAndCommit(req, version)
}

// Reset restores the default request and clears the preview.
func (p *Pipeline) Reset() Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.req
	}

	p.cancelTimer()
	p.req = p.settings.Normalize(p.settings.Defaults)
	p.version++
	if p.artifact != nil {
		p.artifact = nil
		p.emit(Event{Kind: EventCleared})
	}
	return p.req
}

// Export encodes the current request in the given format. It is not
// debounced and does not touch the preview.
func (p *Pipeline) Export(format Format) (*Download, error) {
	p.mu.Lock()
	req, closed := p.req, p.closed
	p.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}
	if req.Payload == "" {
		return nil, ErrEmptyPayload
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatRaster:
		data, err = p.exportRaster(req)
	case FormatVector:
		var markup string
		markup, err = p.encoder.ToString(req.Payload, p.options(req, FormatVector))
		data = []byte(markup)
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}

	fingerprint := render.Fingerprint(req)
	if err != nil {
		p.log.Warn().Err(err).
			Str("format", string(format)).
			Str("fingerprint", fingerprint).
			Msg("export failed")
		return nil, err
	}

	return &Download{
		Format:      format,
		FileName:    format.FileName(),
		ContentType: format.ContentType(),
		Data:        data,
		Fingerprint: fingerprint,
	}, nil
}

// Subscribe returns a channel of regeneration events and a function that
// unsubscribes it. Slow subscribers miss events rather than block.
func (p *Pipeline) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	p.subs[ch] = struct{}{}

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[ch]; ok {
			delete(p.subs, ch)
			close(ch)
		}
	}
}

// Close cancels any pending regeneration and closes all subscriptions.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.cancelTimer()
	for ch := range p.subs {
		close(ch)
		delete(p.subs, ch)
	}
}

// schedule must be called with p.mu held.
func (p *Pipeline) schedule() {
	p.cancelTimer()
	seq := p.timerSeq
	p.timer = p.clock.AfterFunc(p.settings.Delay, func() {
		p.fire(seq)
	})
}

// cancelTimer must be called with p.mu held.
func (p *Pipeline) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.timerSeq++
}

func (p *Pipeline) fire(seq uint64) {
	p.mu.Lock()
	if p.closed || seq != p.timerSeq {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	req, version := p.req, p.version

	if req.Payload == "" {
		p.artifact = nil
		p.emit(Event{Kind: EventCleared})
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// Failures are reported through events and the log.
	_ = p.renderAndCommit(req, version)
}

func (p *Pipeline) renderAndCommit(req Request, version uint64) error {
	fingerprint := render.Fingerprint(req)
	png, err := p.encoder.ToPNG(req.Payload, p.options(req, FormatRaster))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || version != p.version {
		// Superseded by a newer request.
		return nil
	}

	if err != nil {
		p.log.Warn().Err(err).
			Str("fingerprint", fingerprint).
			Int("pixel_size", req.PixelSize).
			Msg("qr regeneration failed, keeping previous artifact")
		p.emit(Event{Kind: EventFailed, Artifact: p.artifact, Err: err})
		return err
	}

	p.renders++
	p.artifact = &Artifact{
		PNG:         png,
		DataURI:     render.DataURI(png),
		Fingerprint: fingerprint,
		Generation:  p.renders,
		Request:     req,
	}
	p.log.Debug().
		Str("fingerprint", fingerprint).
		Uint64("generation", p.renders).
		Msg("qr regenerated")
	p.emit(Event{Kind: EventRendered, Artifact: p.artifact})
	return nil
}

// emit must be called with p.mu held.
func (p *Pipeline) emit(evt Event) {
	if p.hook != nil {
		p.hook(evt)
	}
	for ch := range p.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (p *Pipeline) options(req Request, f Format) render.Options {
	return render.Options{
		Width:  req.PixelSize,
		Margin: p.settings.Margin,
		Dark:   req.ModuleColor,
		Light:  lightColor(req, f),
		Level:  p.settings.Level,
	}
}

// exportRaster draws the code on a canvas that is pre-filled with the
// background color unless the background is transparent.
func (p *Pipeline) exportRaster(req Request) ([]byte, error) {
	var bg *color.NRGBA
	if !req.TransparentBackground {
		c, err := render.ParseColor(req.BackgroundColor)
		if err != nil {
			return nil, errors.Wrap(err, "background color")
		}
		bg = &c
	}

	dc, err := p.encoder.ToCanvas(req.Payload, p.options(req, FormatRaster), bg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, errors.Wrap(err, "encode png")
	}
	return buf.Bytes(), nil
}
