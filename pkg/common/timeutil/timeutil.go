// Package timeutil provides a clock abstraction so components that depend on
// wall-clock time can be tested deterministically.
package timeutil

import "time"

// Provider is an interface that provides the current time.
type Provider interface {
	Now() time.Time
}

type realProvider struct{}

func (realProvider) Now() time.Time { return time.Now() }

// Default returns a Provider backed by the system clock.
func Default() Provider { return realProvider{} }
