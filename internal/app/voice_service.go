package app

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/jonboulle/clockwork"

	"spikeline/internal/domain"
)

const (
	VoiceActionLogin = "login"
	VoiceActionJoin  = "join"

	voiceTokenTTL = time.Hour
)

var (
	ErrVoiceNotConfigured = errors.New("voice service config is incomplete")
	ErrVoiceUserRequired  = errors.New("voice user is required")
	ErrVoiceChannel       = errors.New("channel name is required for join tokens")
	ErrVoiceAction        = errors.New("unsupported voice action")
)

// VoiceService signs Vivox access tokens for match voice channels.
type VoiceService struct {
	secret string
	issuer string
	domain string
	clock  clockwork.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

func NewVoiceService(secret, issuer, domain string, clock clockwork.Clock) *VoiceService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &VoiceService{
		secret: secret,
		issuer: issuer,
		domain: domain,
		clock:  clock,
		rng:    rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// TeamChannel names the voice channel shared by one side of a match.
func TeamChannel(matchID string, side domain.Side) string {
	return matchID + "-" + string(side)
}

// GenerateToken signs a login token, or a join token for channelName.
func (s *VoiceService) GenerateToken(user, action, channelName string) (string, error) {
	if s == nil || s.secret == "" || s.issuer == "" || s.domain == "" {
		return "", ErrVoiceNotConfigured
	}
	if user == "" {
		return "", ErrVoiceUserRequired
	}

	userURI := s.userURI(user)
	var target string
	switch action {
	case VoiceActionLogin:
		target = userURI
	case VoiceActionJoin:
		if channelName == "" {
			return "", ErrVoiceChannel
		}
		target = s.channelURI(channelName)
	default:
		return "", fmt.Errorf("%w: %s", ErrVoiceAction, action)
	}

	now := s.clock.Now()
	s.mu.Lock()
	nonce := s.rng.Int63()
	s.mu.Unlock()

	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": user,
		"exp": now.Add(voiceTokenTTL).Unix(),
		"vxa": action,
		"vxi": fmt.Sprintf("%d-%d", now.UnixNano(), nonce),
		"f":   userURI,
		"t":   target,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// TeamToken signs a join token for the participant's current team channel.
func (s *VoiceService) TeamToken(m *Match, participantID string) (string, string, error) {
	p, ok := m.ParticipantSnapshot(participantID)
	if !ok {
		return "", "", ErrNotInMatch
	}
	channel := TeamChannel(m.ID(), p.Side)
	token, err := s.GenerateToken(participantID, VoiceActionJoin, channel)
	return token, channel, err
}

func (s *VoiceService) userURI(user string) string {
	return "sip:." + s.issuer + "." + user + ".@" + s.domain
}

func (s *VoiceService) channelURI(channelName string) string {
	return "sip:confctl-g-" + channelName + "@" + s.domain
}
