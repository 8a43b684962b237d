// Package mock provides a test double for the command.Executor interface.
package mock

import (
	"context"
	"sync"

	"github.com/genievoice/genie/pkg/provider/command"
)

// Result scripts the outcome of one Execute call.
type Result struct {
	Reply string
	Err   error
}

// Executor is a mock implementation of command.Executor. It records every
// call and returns the configured results.
type Executor struct {
	mu sync.Mutex

	// Reply is returned by every Execute call when Results is exhausted.
	Reply string

	// Results, when non-empty, is consumed one value per call before
	// falling back to Reply.
	Results []Result
	next    int

	// Err, if non-nil, is returned by every Execute call once Results is
	// exhausted.
	Err error

	// ExecuteCalls records the text of every Execute call in order.
	ExecuteCalls []string
}

// Execute records the call and returns the next scripted result.
func (e *Executor) Execute(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ExecuteCalls = append(e.ExecuteCalls, text)
	if e.next < len(e.Results) {
		r := e.Results[e.next]
		e.next++
		return r.Reply, r.Err
	}
	if e.Err != nil {
		return "", e.Err
	}
	return e.Reply, nil
}

var _ command.Executor = (*Executor)(nil)
