// Package httpapi exposes the standalone arena host over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"

	"spikeline/internal/app"
	"spikeline/internal/config"
	"spikeline/internal/domain"
	"spikeline/internal/logging"
	"spikeline/internal/ports/gormstore"
	"spikeline/internal/queue"
)

// Records serves persisted history. Optional.
type Records interface {
	Career(ctx context.Context, userID string) (gormstore.PlayerCareer, error)
	Leaderboard(ctx context.Context, limit int) ([]gormstore.PlayerCareer, error)
	RecentMatches(ctx context.Context, mode string, limit int) ([]gormstore.MatchRecord, error)
	MatchSummary(ctx context.Context, id string) (domain.MatchSummary, error)
}

// Options wire the server to the engine.
type Options struct {
	Registry   *app.Registry
	Matchmaker *app.Matchmaker
	Queues     *queue.Manager
	Game       *config.GameConfig
	Records    Records
	Voice      *app.VoiceService
	Secret     []byte
	Clock      clockwork.Clock
	Logger     runtime.Logger
}

// Server is the fiber application.
type Server struct {
	opts Options
	app  *fiber.App
}

func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	s := &Server{
		opts: opts,
		app:  fiber.New(fiber.Config{AppName: "spikeline", DisableStartupMessage: true}),
	}
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
	}))
	s.routes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.opts.Logger.Info("http api listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)
	s.app.Get("/modes", s.listModes)
	s.app.Get("/arenas", s.listArenas)

	v1 := s.app.Group("/v1", RequireToken(s.opts.Secret))
	v1.Get("/matches", s.listMatches)
	v1.Get("/matches/:id", s.getMatch)
	v1.Post("/matches/:id/join", s.joinMatch)
	v1.Post("/matches/:id/spectate", s.spectateMatch)
	v1.Post("/matches/:id/actions/:action", s.matchAction)
	v1.Get("/matches/:id/voice", s.voiceToken)
	v1.Post("/leave", s.leave)

	v1.Get("/queue", s.queuePosition)
	v1.Post("/queue", s.enqueue)
	v1.Delete("/queue", s.dequeue)

	v1.Get("/careers/:id", s.career)
	v1.Get("/leaderboard", s.leaderboard)
	v1.Get("/history", s.history)
	v1.Get("/history/:id", s.historyMatch)

	admin := v1.Group("/admin", RequireAdmin())
	admin.Post("/matches", s.createMatch)
	admin.Post("/matches/:id/start", s.startMatch)
	admin.Post("/matches/:id/end", s.endMatch)
	admin.Post("/matches/:id/round", s.endRound)
	admin.Post("/tokens", s.issueToken)
}

// parseBody decodes an optional JSON body.
func parseBody(c *fiber.Ctx, v interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) match(c *fiber.Ctx) (*app.Match, error) {
	m, ok := s.opts.Registry.Match(c.Params("id"))
	if !ok {
		return nil, app.ErrUnknownMatch
	}
	return m, nil
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "matches": len(s.opts.Registry.Matches())})
}

type modeView struct {
	Name        string `json:"name"`
	MinPerTeam  int    `json:"min_per_team"`
	MaxPerTeam  int    `json:"max_per_team"`
	RoundsToWin int    `json:"rounds_to_win"`
	MaxRounds   int    `json:"max_rounds"`
}

func sortedKeys(m map[string]domain.Mode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) listModes(c *fiber.Ctx) error {
	modes := s.opts.Game.ModeSet()
	out := make([]modeView, 0, len(modes))
	for _, name := range sortedKeys(modes) {
		m := modes[name]
		out = append(out, modeView{Name: m.Name, MinPerTeam: m.MinPerTeam, MaxPerTeam: m.MaxPerTeam, RoundsToWin: m.RoundsToWin, MaxRounds: m.MaxRounds})
	}
	return c.JSON(out)
}

func (s *Server) listArenas(c *fiber.Ctx) error {
	names := s.opts.Game.ArenaNames()
	if names == nil {
		names = []string{}
	}
	return c.JSON(names)
}

type matchView struct {
	ID      string              `json:"id"`
	Mode    string              `json:"mode"`
	Map     string              `json:"map"`
	State   domain.MatchState   `json:"state"`
	Round   int                 `json:"round"`
	Players int                 `json:"players"`
	Scores  map[domain.Side]int `json:"scores"`
}

func (s *Server) listMatches(c *fiber.Ctx) error {
	matches := s.opts.Registry.Matches()
	out := make([]matchView, 0, len(matches))
	for _, m := range matches {
		snap := m.Snapshot()
		v := matchView{ID: snap.ID, Mode: snap.Mode, Map: snap.Map, State: snap.State, Round: snap.Round.Number, Scores: map[domain.Side]int{}}
		for _, t := range snap.Teams {
			v.Players += len(t.Members)
			v.Scores[t.Side] = t.Score
		}
		out = append(out, v)
	}
	return c.JSON(out)
}

func (s *Server) getMatch(c *fiber.Ctx) error {
	m, err := s.match(c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(m.Snapshot())
}

type joinRequest struct {
	Side string `json:"side"`
}

func (s *Server) joinMatch(c *fiber.Ctx) error {
	var req joinRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	id, name := caller(c)
	if err := s.opts.Matchmaker.Join(c.Params("id"), id, name, domain.Side(req.Side)); err != nil {
		return fail(c, err)
	}
	return s.getMatch(c)
}

func (s *Server) spectateMatch(c *fiber.Ctx) error {
	id, name := caller(c)
	if err := s.opts.Registry.Spectate(c.Params("id"), id, name); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) leave(c *fiber.Ctx) error {
	id, _ := caller(c)
	if err := s.opts.Registry.Leave(id); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type actionRequest struct {
	Position   domain.Vec3 `json:"position"`
	Location   domain.Vec3 `json:"location"`
	VictimID   string      `json:"victim_id"`
	KillerID   string      `json:"killer_id"`
	Amount     int         `json:"amount"`
	Headshot   bool        `json:"headshot"`
	ItemID     string      `json:"item_id"`
	Ability    string      `json:"ability"`
	CooldownMS int         `json:"cooldown_ms"`
}

// matchAction applies a participant action reported by the world layer. The caller acts as themself.
func (s *Server) matchAction(c *fiber.Ctx) error {
	m, err := s.match(c)
	if err != nil {
		return fail(c, err)
	}
	var req actionRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	id, _ := caller(c)

	switch c.Params("action") {
	case "move":
		err = m.Move(id, req.Position)
	case "damage":
		err = m.Damage(id, req.VictimID, req.Amount, req.Headshot)
	case "eliminate":
		err = m.Eliminate(id, req.KillerID)
	case "plant":
		err = m.Plant(id, req.Location)
	case "defuse":
		err = m.Defuse(id)
	case "pickup":
		err = m.PickUpSpike(id)
	case "purchase":
		err = m.Purchase(id, req.ItemID)
	case "ultimate":
		err = m.ActivateUltimate(id)
	case "ability":
		err = m.UseAbility(id, req.Ability, time.Duration(req.CooldownMS)*time.Millisecond)
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown action"})
	}
	if err != nil {
		return fail(c, err)
	}
	p, _ := m.ParticipantSnapshot(id)
	return c.JSON(p)
}

func (s *Server) voiceToken(c *fiber.Ctx) error {
	m, err := s.match(c)
	if err != nil {
		return fail(c, err)
	}
	if s.opts.Voice == nil {
		return fail(c, app.ErrVoiceNotConfigured)
	}
	id, _ := caller(c)
	token, channel, err := s.opts.Voice.TeamToken(m, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "channel": channel})
}

type queueRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) enqueue(c *fiber.Ctx) error {
	var req queueRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	id, name := caller(c)
	pos, err := s.opts.Matchmaker.Enqueue(req.Mode, id, name)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"mode": req.Mode, "position": pos})
}

func (s *Server) dequeue(c *fiber.Ctx) error {
	id, _ := caller(c)
	if err := s.opts.Matchmaker.Dequeue(id); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) queuePosition(c *fiber.Ctx) error {
	id, _ := caller(c)
	mode, pos, ok := s.opts.Queues.Position(id)
	if !ok {
		if p, found := s.opts.Registry.LookupParticipant(id); found && p.MatchID() != "" {
			return c.JSON(fiber.Map{"match_id": p.MatchID()})
		}
		return fail(c, queue.ErrNotIn)
	}
	return c.JSON(fiber.Map{"mode": mode, "position": pos})
}

func limitParam(c *fiber.Ctx) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

func (s *Server) career(c *fiber.Ctx) error {
	if s.opts.Records == nil {
		return fail(c, errNoRecords)
	}
	career, err := s.opts.Records.Career(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(career)
}

func (s *Server) leaderboard(c *fiber.Ctx) error {
	if s.opts.Records == nil {
		return fail(c, errNoRecords)
	}
	rows, err := s.opts.Records.Leaderboard(c.UserContext(), limitParam(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(rows)
}

func (s *Server) history(c *fiber.Ctx) error {
	if s.opts.Records == nil {
		return fail(c, errNoRecords)
	}
	rows, err := s.opts.Records.RecentMatches(c.UserContext(), c.Query("mode"), limitParam(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(rows)
}

func (s *Server) historyMatch(c *fiber.Ctx) error {
	if s.opts.Records == nil {
		return fail(c, errNoRecords)
	}
	summary, err := s.opts.Records.MatchSummary(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(summary)
}

type createMatchRequest struct {
	Mode string `json:"mode"`
	Map  string `json:"map"`
}

func (s *Server) createMatch(c *fiber.Ctx) error {
	var req createMatchRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	mode, ok := s.opts.Game.ModeSet()[req.Mode]
	if !ok {
		return fail(c, app.ErrUnknownMode)
	}
	layout, ok := s.opts.Game.Layout(req.Map)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown map"})
	}
	m, err := s.opts.Registry.CreateMatch(layout, mode)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m.Snapshot())
}

func (s *Server) startMatch(c *fiber.Ctx) error {
	m, err := s.match(c)
	if err != nil {
		return fail(c, err)
	}
	if err := m.StartMatch(); err != nil {
		return fail(c, err)
	}
	return c.JSON(m.Snapshot())
}

func (s *Server) endMatch(c *fiber.Ctx) error {
	m, err := s.match(c)
	if err != nil {
		return fail(c, err)
	}
	ended := m.EndMatch(domain.MatchEndAdmin)
	return c.JSON(fiber.Map{"ended": ended})
}

type endRoundRequest struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

func (s *Server) endRound(c *fiber.Ctx) error {
	m, err := s.match(c)
	if err != nil {
		return fail(c, err)
	}
	var req endRoundRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	reason := domain.RoundEndReason(req.Reason)
	if reason == "" {
		reason = domain.RoundTimeExpired
	}
	if err := m.EndRound(reason, domain.Side(req.Winner)); err != nil {
		return fail(c, err)
	}
	return c.JSON(m.Snapshot())
}

type tokenRequest struct {
	Subject    string `json:"subject"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	TTLMinutes int    `json:"ttl_minutes"`
}

func (s *Server) issueToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	ttl := time.Duration(req.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := IssueToken(s.opts.Secret, req.Subject, req.Name, req.Role, s.opts.Clock.Now(), ttl)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": token})
}
