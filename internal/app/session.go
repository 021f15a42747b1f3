package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/refresh/internal/engine/classifier"
	"go.trai.ch/refresh/internal/engine/coordinator"
	"go.trai.ch/refresh/internal/engine/launcher"
)

// Supervisor is the part of the launcher a session drives.
type Supervisor interface {
	IsStarted() bool
	Restart() error
	ForwardToChild(path string, replyEvents []string)
}

// SessionOptions are the per-run settings a session routes by.
type SessionOptions struct {
	ReadyEvent         string
	KeepRulesOnRestart bool
	OpenBrowser        bool
}

// Session routes file changes and app messages between the engine parts of one run.
type Session struct {
	logger      ports.Logger
	supervisor  Supervisor
	classifier  *classifier.Classifier
	coordinator *coordinator.Coordinator
	browser     ports.BrowserOpener
	opts        SessionOptions

	generation atomic.Uint64
	opened     atomic.Bool
	pumps      sync.WaitGroup
}

// NewSession creates a Session.
func NewSession(
	logger ports.Logger,
	supervisor Supervisor,
	cls *classifier.Classifier,
	coord *coordinator.Coordinator,
	browser ports.BrowserOpener,
	opts SessionOptions,
) *Session {
	if opts.ReadyEvent == "" {
		opts.ReadyEvent = domain.DefaultReadyEvent
	}
	return &Session{
		logger:      logger,
		supervisor:  supervisor,
		classifier:  cls,
		coordinator: coord,
		browser:     browser,
		opts:        opts,
	}
}

// HandleChange restarts the app for an ordinary change and forwards a
// special change to the running app.
func (s *Session) HandleChange(ev domain.ChangeEvent) {
	rel := classifier.RelativePath(ev.Root, ev.Path)
	s.logger.Info(ev.Kind.Describe(rel))

	c := s.classifier.Classify(ev, s.supervisor.IsStarted())
	if !c.Special {
		if err := s.supervisor.Restart(); err != nil {
			s.logger.Error(err)
		}
		return
	}

	s.logger.Info("Special reload: " + rel)
	s.supervisor.ForwardToChild(ev.Path, c.ReplyEvents)
	if c.ShouldRefresh() {
		s.coordinator.RequestPage()
	}
}

// OnStart is subscribed to the launcher. It opens a readiness window for
// the new generation and starts draining the app's messages.
func (s *Session) OnStart(ev launcher.StartEvent) {
	s.generation.Store(ev.Generation)
	if !s.opts.KeepRulesOnRestart {
		s.classifier.Reset()
	}
	s.coordinator.OnStart(ev.Generation)

	s.pumps.Add(1)
	go func() {
		defer s.pumps.Done()
		for msg := range ev.Process.Messages() {
			s.Dispatch(ev.Generation, msg)
		}
	}()
}

// Wait blocks until the message pumps of every started app have drained or ctx is done.
func (s *Session) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Dispatch handles one message sent by the app of the given generation.
func (s *Session) Dispatch(generation uint64, msg domain.ChildMessage) {
	switch m := msg.(type) {
	case domain.SignalMessage:
		s.handleSignal(generation, m)
	case domain.SpecialReloadMessage:
		if generation != s.generation.Load() {
			s.logger.Debug("dropping special reload from a replaced app", "generation", generation)
			return
		}
		if err := s.classifier.Register(m); err != nil {
			if errors.Is(err, domain.ErrMalformedRule) {
				s.logger.Warn("ignoring special reload without patterns", "event", m.ModifiedEvent)
				return
			}
			s.logger.Error(err)
			return
		}
		s.logger.Debug("special reload registered", "patterns", m.Patterns, "event", m.ModifiedEvent)
	case domain.RemoveSpecialReloadMessage:
		if generation != s.generation.Load() {
			s.logger.Debug("dropping special reload removal from a replaced app", "generation", generation)
			return
		}
		n := s.classifier.Remove(m.ModifiedEvent)
		s.logger.Debug("special reload removed", "event", m.ModifiedEvent, "rules", n)
	case domain.RefreshMessage:
		s.coordinator.Request(m.Flags)
	}
}

func (s *Session) handleSignal(generation uint64, m domain.SignalMessage) {
	if m.Name != s.opts.ReadyEvent {
		s.logger.Debug("ignoring signal from app", "signal", m.Name)
		return
	}
	s.coordinator.Ready(generation)

	if m.URL == "" || !s.opts.OpenBrowser || s.browser == nil {
		return
	}
	if s.opened.Swap(true) {
		return
	}
	if err := s.browser.Open(m.URL); err != nil {
		s.logger.Warn("could not open browser", "url", m.URL, "error", err)
	}
}
