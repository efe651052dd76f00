// Package fakes provides in-memory test doubles for the service's collaborators.
package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/linkpulse/notifyhub/internal/domain/presence"
)

// --- Emitter ---

// Emitted is one event captured by an Emitter
type Emitted struct {
	Event string
	Data  interface{}
}

// Emitter records every emitted event. Set Err to make emissions fail and
// Panic to make them panic.
type Emitter struct {
	mu       sync.Mutex
	messages []Emitted
	closed   bool

	Err   error
	Panic bool
}

func NewEmitter() *Emitter { return &Emitter{} }

func (e *Emitter) Emit(event string, data interface{}) error {
	if e.Panic {
		panic("fake emitter panic")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return presence.ErrConnectionClosed
	}
	if e.Err != nil {
		return e.Err
	}
	e.messages = append(e.messages, Emitted{Event: event, Data: data})
	return nil
}

func (e *Emitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Emitter) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Messages returns a copy of everything emitted so far
func (e *Emitter) Messages() []Emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Emitted(nil), e.messages...)
}

// Events returns the names of everything emitted so far, in order
func (e *Emitter) Events() []string {
	msgs := e.Messages()
	names := make([]string, len(msgs))
	for i, m := range msgs {
		names[i] = m.Event
	}
	return names
}

// Count returns how many times event was emitted
func (e *Emitter) Count(event string) int {
	n := 0
	for _, m := range e.Messages() {
		if m.Event == event {
			n++
		}
	}
	return n
}

// Last returns the most recent emission of event
func (e *Emitter) Last(event string) (Emitted, bool) {
	msgs := e.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Event == event {
			return msgs[i], true
		}
	}
	return Emitted{}, false
}

// Reset forgets recorded emissions
func (e *Emitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = nil
}

// --- Credentials ---

// CredentialValidator accepts tokens present in its map
type CredentialValidator struct {
	Tokens map[string]string
}

func NewCredentialValidator(tokens map[string]string) *CredentialValidator {
	return &CredentialValidator{Tokens: tokens}
}

func (v *CredentialValidator) Verify(_ context.Context, token string) (presence.VerifiedIdentity, error) {
	userID, ok := v.Tokens[token]
	if !ok {
		return presence.VerifiedIdentity{}, presence.ErrInvalidCredential
	}
	return presence.VerifiedIdentity{UserID: userID}, nil
}

// --- Event publishing ---

// Published is one event captured by a Publisher
type Published struct {
	Name    string
	Payload interface{}
}

// Publisher records published events. Set Err to make publishing fail.
type Publisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) Publish(name string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, Published{Name: name, Payload: payload})
	return nil
}

func (p *Publisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}

// ErrFake is a generic failure for tests that need one
var ErrFake = errors.New("fake failure")
