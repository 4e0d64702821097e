// Package discord announces finished matches in a Discord channel.
package discord

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/heroiclabs/nakama-common/runtime"

	"spikeline/internal/app"
	"spikeline/internal/domain"
	"spikeline/internal/logging"
)

const (
	colorWin  = 0x57F287
	colorDraw = 0x808080

	queueSize = 64
)

// embedSender is the part of *discordgo.Session the notifier uses.
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier is an app.Sink that posts a scoreboard when a match ends.
// Publish never blocks; Run delivers the queued embeds.
type Notifier struct {
	sender    embedSender
	channelID string
	logger    runtime.Logger
	queue     chan *discordgo.MessageEmbed
}

// Open starts a bot session for token.
func Open(token, channelID string, logger runtime.Logger) (*Notifier, *discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, nil, fmt.Errorf("discord session: %w", err)
	}
	return New(s, channelID, logger), s, nil
}

func New(sender embedSender, channelID string, logger runtime.Logger) *Notifier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Notifier{
		sender:    sender,
		channelID: channelID,
		logger:    logger,
		queue:     make(chan *discordgo.MessageEmbed, queueSize),
	}
}

func (n *Notifier) Publish(_ context.Context, ev app.Event) {
	p, ok := ev.Payload.(app.MatchEndedPayload)
	if !ok {
		return
	}
	select {
	case n.queue <- RenderSummary(p.Summary):
	default:
		n.logger.Warn("discord queue full, dropping result of %s", ev.MatchID)
	}
}

// Run sends queued embeds until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case emb := <-n.queue:
			if _, err := n.sender.ChannelMessageSendEmbed(n.channelID, emb); err != nil {
				n.logger.Error("discord send: %v", err)
			}
		}
	}
}

// RenderSummary builds the scoreboard embed for a finished match.
func RenderSummary(s domain.MatchSummary) *discordgo.MessageEmbed {
	alpha, bravo := s.Scores[domain.TeamAlpha], s.Scores[domain.TeamBravo]
	emb := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s on %s", strings.ToUpper(s.Mode), s.Map),
		Description: fmt.Sprintf("**Alpha %d : %d Bravo** (%s)", alpha, bravo, strings.ReplaceAll(string(s.Reason), "_", " ")),
		Color:       colorWin,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Match " + s.MatchID},
	}
	if !s.EndedAt.IsZero() {
		emb.Timestamp = s.EndedAt.UTC().Format(time.RFC3339)
	}
	if s.Draw || s.WinnerTeam == domain.TeamNone {
		emb.Color = colorDraw
	}

	for _, team := range []domain.Team{domain.TeamAlpha, domain.TeamBravo} {
		name := strings.ToUpper(string(team)[:1]) + string(team)[1:]
		if team == s.WinnerTeam && !s.Draw {
			name += " 🏆"
		}
		emb.Fields = append(emb.Fields, &discordgo.MessageEmbedField{
			Name:   name,
			Value:  teamLines(s.Players, team),
			Inline: true,
		})
	}
	return emb
}

func teamLines(players []domain.PlayerLine, team domain.Team) string {
	var lines []domain.PlayerLine
	for _, p := range players {
		if p.Team == team {
			lines = append(lines, p)
		}
	}
	if len(lines) == 0 {
		return "_nobody_"
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Stats.Kills > lines[j].Stats.Kills })
	var b strings.Builder
	for _, p := range lines {
		fmt.Fprintf(&b, "%s `%d/%d/%d`\n", p.Name, p.Stats.Kills, p.Stats.Deaths, p.Stats.Assists)
	}
	return strings.TrimRight(b.String(), "\n")
}
