// Package uniqueid issues short ids that never repeat within one scope.
package uniqueid

import (
	"fmt"
	"sync"

	"github.com/pion/randutil"
)

const (
	idLength = 13
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Generator remembers every id issued since the last Reset.
type Generator struct {
	mu     sync.Mutex
	issued map[string]struct{}
	rand   func() (string, error)
}

func New() *Generator {
	return &Generator{
		issued: make(map[string]struct{}),
		rand: func() (string, error) {
			return randutil.GenerateCryptoRandomString(idLength, alphabet)
		},
	}
}

// Next returns an id not issued since the last Reset.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		id, err := g.rand()
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		if _, dup := g.issued[id]; dup {
			continue
		}
		g.issued[id] = struct{}{}
		return id, nil
	}
}

// Reset starts a new scope; ids from earlier scopes may be issued again.
func (g *Generator) Reset() {
	g.mu.Lock()
	g.issued = make(map[string]struct{})
	g.mu.Unlock()
}
