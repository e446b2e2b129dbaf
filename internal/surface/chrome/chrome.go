// Package chrome is a surface backed by a headless Chrome tab driven through
// go-rod. Renderer HTML is set as the tab's document content, an instrument
// script tags the clicked submit control and reports form events back through
// a CDP runtime binding.
package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/surface"
)

const bindingName = "__problemBridge"

// Options configure a Surface.
type Options struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local headless one.
	RemoteURL string
	FormID    string
	Marker    string
	Logger    zerolog.Logger
}

// Surface hosts renders in one Chrome tab.
type Surface struct {
	opts    Options
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	ctx     context.Context
	cancel  context.CancelFunc
	log     zerolog.Logger

	mu     sync.Mutex
	onLoad surface.LoadFunc
	rev    uint64
	doc    *Document
}

var _ surface.Surface = (*Surface)(nil)

// Launch starts or connects to Chrome and opens the tab.
func Launch(ctx context.Context, opts Options) (*Surface, error) {
	s := &Surface{opts: opts, log: opts.Logger.With().Str("component", "chrome_surface").Logger()}

	wsURL := opts.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("chrome: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
		s.log.Info().Str("url", wsURL).Msg("Launched local chrome")
	}

	s.browser = rod.New().ControlURL(wsURL)
	if err := s.browser.Connect(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("chrome: connect: %w", err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("chrome: create tab: %w", err)
	}
	s.page = page

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("chrome: add binding: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.listen()
	return s, nil
}

// Close closes the tab and the browser.
func (s *Surface) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.cleanup()
}

func (s *Surface) cleanup() error {
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return nil
}

// OnLoad registers the load callback.
func (s *Surface) OnLoad(fn surface.LoadFunc) {
	s.mu.Lock()
	s.onLoad = fn
	s.mu.Unlock()
}

// Show replaces the tab's document and reports it loaded once instrumented.
func (s *Surface) Show(rev uint64, html string) {
	s.mu.Lock()
	s.rev = rev
	s.doc = nil
	s.mu.Unlock()

	doc, err := s.load(rev, html)
	if err != nil {
		s.log.Warn().Err(err).Uint64("rev", rev).Msg("Failed to show document")
		return
	}

	s.mu.Lock()
	if rev != s.rev {
		s.mu.Unlock()
		return
	}
	s.doc = doc
	fn := s.onLoad
	s.mu.Unlock()

	if fn != nil {
		fn(rev, doc.withCapabilities())
	}
}

func (s *Surface) load(rev uint64, html string) (*Document, error) {
	page := s.page.Context(s.ctx)
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		s.log.Debug().Err(err).Msg("Wait load failed")
	}

	res, err := page.Eval(instrumentJS, s.opts.FormID, s.opts.Marker, bindingName, rev)
	if err != nil {
		return nil, fmt.Errorf("instrument: %w", err)
	}

	var caps struct {
		Prepare bool `json:"prepare"`
		Typeset bool `json:"typeset"`
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &caps); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}

	return &Document{
		page:    s.page,
		marker:  s.opts.Marker,
		log:     s.log,
		prepare: caps.Prepare,
		typeset: caps.Typeset,
		forms:   map[string]*Form{},
	}, nil
}

type bindingEvent struct {
	Kind string `json:"kind"`
	Rev  uint64 `json:"rev"`
	Form string `json:"form"`
}

// listen receives calls from the instrument script via Runtime.bindingCalled.
func (s *Surface) listen() {
	s.page.Context(s.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}

		var ev bindingEvent
		if err := json.Unmarshal([]byte(e.Payload), &ev); err != nil {
			s.log.Warn().Err(err).Msg("Failed to parse binding payload")
			return
		}

		s.mu.Lock()
		doc := s.doc
		current := ev.Rev == s.rev
		s.mu.Unlock()
		if !current || doc == nil {
			return
		}

		switch ev.Kind {
		case "input":
			doc.dispatch(ev.Form, surface.EventInput)
		case "submit":
			doc.dispatch(ev.Form, surface.EventSubmit)
		case "typeset":
			doc.completeTypeset()
		}
	})()
}
