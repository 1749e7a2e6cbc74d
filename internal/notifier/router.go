package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Scheme names understood by Router.
const (
	SchemeEmail    = "email"
	SchemeTelegram = "telegram"
)

// Router sends through the Sender registered for the address scheme.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Sender
}

func NewRouter() *Router {
	return &Router{routes: map[string]Sender{}}
}

// Handle registers s for scheme. A nil sender removes the route.
func (r *Router) Handle(scheme string, s Sender) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	r.mu.Lock()
	defer r.mu.Unlock()
	if s == nil {
		delete(r.routes, scheme)
		return
	}
	r.routes[scheme] = s
}

func (r *Router) Has(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[strings.ToLower(scheme)]
	return ok
}

func (r *Router) Send(ctx context.Context, address, subject, body string) error {
	scheme, _, err := SplitAddress(address)
	if err != nil {
		return err
	}
	r.mu.RLock()
	s := r.routes[scheme]
	r.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNoSender, scheme)
	}
	return s.Send(ctx, address, subject, body)
}

// SplitAddress returns the scheme and the transport-specific target.
//
//	"telegram:12345"      -> ("telegram", "12345")
//	"mailto:a@example.com" -> ("email", "a@example.com")
//	"a@example.com"        -> ("email", "a@example.com")
func SplitAddress(address string) (scheme, target string, err error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if i := strings.IndexByte(address, ':'); i > 0 {
		scheme = strings.ToLower(address[:i])
		target = strings.TrimSpace(address[i+1:])
		if scheme == "mailto" {
			scheme = SchemeEmail
		}
		if target == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
		return scheme, target, nil
	}
	if strings.Contains(address, "@") {
		return SchemeEmail, address, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
}
