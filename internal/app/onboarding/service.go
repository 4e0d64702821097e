// Package onboarding prepares freshly created accounts for play.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"spikeline/internal/ports"
)

var ErrNotConfigured = errors.New("onboarding service not configured")

var (
	callsignAdjectives = []string{"Silent", "Rapid", "Iron", "Neon", "Ghost", "Crimson", "Frost", "Static", "Hollow", "Solar"}
	callsignNouns      = []string{"Viper", "Falcon", "Warden", "Spectre", "Raven", "Cipher", "Lynx", "Comet", "Nomad", "Vandal"}
)

// Result reports what onboarding did for one account.
type Result struct {
	Callsign string
	// CareerCreated is false when the player already had a career; nothing else is touched then.
	CareerCreated bool
	// ProfileErr is set when the callsign could not be published. Onboarding still succeeds.
	ProfileErr error
}

type Service struct {
	profiles ports.ProfilePort
	careers  ports.CareerPort

	mu  sync.Mutex
	rng *rand.Rand
}

// NewService builds the service; rng may be nil.
func NewService(profiles ports.ProfilePort, careers ports.CareerPort, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{profiles: profiles, careers: careers, rng: rng}
}

// Onboard creates the career record of a new player under a generated callsign and then
// publishes the callsign on the account. A player who already has a career is left as is.
func (s *Service) Onboard(ctx context.Context, userID string) (Result, error) {
	if s.profiles == nil || s.careers == nil {
		return Result{}, ErrNotConfigured
	}

	res := Result{Callsign: s.callsign()}
	created, err := s.careers.InitCareer(ctx, userID, res.Callsign)
	if err != nil {
		return res, fmt.Errorf("init career for %s: %w", userID, err)
	}
	res.CareerCreated = created
	if !created {
		return res, nil
	}
	res.ProfileErr = s.profiles.SetCallsign(ctx, userID, res.Callsign)
	return res, nil
}

func (s *Service) callsign() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s%s%d",
		callsignAdjectives[s.rng.Intn(len(callsignAdjectives))],
		callsignNouns[s.rng.Intn(len(callsignNouns))],
		s.rng.Intn(900)+100)
}
