package app

import (
	"fmt"

	"github.com/dkeye/StreamRoom/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a recipient whose outbound queue is full.
type Policy interface {
	OnBackPressure(id domain.UserID) BackpressureAction
}

// DropPolicy loses the frame and keeps the recipient connected.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.UserID) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects recipients that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.UserID) BackpressureAction {
	return KickMember
}

// PolicyByName resolves the "backpressure" config value.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
