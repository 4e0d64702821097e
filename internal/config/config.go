package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"spikeline/internal/domain"
)

// Point is a position in arena coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Point) vec() domain.Vec3 { return domain.Vec3{X: p.X, Y: p.Y, Z: p.Z} }

type SiteConfig struct {
	Name        string  `json:"name"`
	Center      Point   `json:"center"`
	Radius      float64 `json:"radius"`
	PlantPoints []Point `json:"plant_points"`
}

type BuyZoneConfig struct {
	Side   string `json:"side"`
	Corner Point  `json:"corner"`
	Other  Point  `json:"other"`
}

type ArenaConfig struct {
	Name             string          `json:"name"`
	Sites            []SiteConfig    `json:"sites"`
	AttackerSpawns   []Point         `json:"attacker_spawns"`
	DefenderSpawns   []Point         `json:"defender_spawns"`
	BuyZones         []BuyZoneConfig `json:"buy_zones"`
	BuyTimeSeconds   int             `json:"buy_time_seconds"`
	RoundTimeSeconds int             `json:"round_time_seconds"`
}

type ModeConfig struct {
	Name             string `json:"name"`
	Rules            string `json:"rules"`
	MinPerTeam       int    `json:"min_per_team"`
	MaxPerTeam       int    `json:"max_per_team"`
	RoundsToWin      int    `json:"rounds_to_win"`
	MaxRounds        int    `json:"max_rounds"`
	BuyTimeSeconds   int    `json:"buy_time_seconds"`
	RoundTimeSeconds int    `json:"round_time_seconds"`
	// HitLimit only applies to boxing rules.
	HitLimit int `json:"hit_limit"`
	// QueueCapacity bounds the matchmaking queue; zero is unbounded.
	QueueCapacity int `json:"queue_capacity"`
}

type ItemConfig struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cost  int    `json:"cost"`
	Armor int    `json:"armor"`
}

type GameConfig struct {
	Arenas []ArenaConfig `json:"arenas"`
	Modes  []ModeConfig  `json:"modes"`
	Shop   []ItemConfig  `json:"shop"`
	// SettleDelaySeconds is the pause between rounds.
	SettleDelaySeconds int `json:"settle_delay_seconds"`
}

var (
	cfg      *GameConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadGameConfig loads the game configuration from the given path.
func LoadGameConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read game config: %w", err)
			return
		}
		c, err := Parse(data)
		if err != nil {
			loadErr = err
			return
		}
		cfg = c
	})
	return loadErr
}

// GetGameConfig returns the global game configuration, or nil before a successful load.
func GetGameConfig() *GameConfig {
	return cfg
}

// Parse decodes and validates a game configuration document.
func Parse(data []byte) (*GameConfig, error) {
	var c GameConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every arena and mode can be converted to domain values.
func (c *GameConfig) Validate() error {
	seen := map[string]bool{}
	for _, a := range c.Arenas {
		if a.Name == "" {
			return fmt.Errorf("arena without a name")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate arena %q", a.Name)
		}
		seen[a.Name] = true
		for _, z := range a.BuyZones {
			if _, err := parseSide(z.Side); err != nil {
				return fmt.Errorf("arena %s: %w", a.Name, err)
			}
		}
	}
	for _, m := range c.Modes {
		if _, err := m.Mode(); err != nil {
			return err
		}
	}
	return nil
}

// SettleDelay returns the configured pause between rounds, or zero for the engine default.
func (c *GameConfig) SettleDelay() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(c.SettleDelaySeconds) * time.Second
}

// Layouts converts every arena, in file order.
func (c *GameConfig) Layouts() []domain.Layout {
	if c == nil {
		return nil
	}
	out := make([]domain.Layout, 0, len(c.Arenas))
	for _, a := range c.Arenas {
		out = append(out, a.Layout())
	}
	return out
}

// Layout looks up an arena by case-insensitive name.
func (c *GameConfig) Layout(name string) (domain.Layout, bool) {
	if c == nil {
		return domain.Layout{}, false
	}
	for _, a := range c.Arenas {
		if strings.EqualFold(a.Name, name) {
			return a.Layout(), true
		}
	}
	return domain.Layout{}, false
}

// ModeSet returns the configured modes keyed by name. Built-in modes fill in when none are configured.
func (c *GameConfig) ModeSet() map[string]domain.Mode {
	out := map[string]domain.Mode{}
	if c == nil || len(c.Modes) == 0 {
		for _, name := range domain.ModeNames() {
			out[name], _ = domain.LookupMode(name)
		}
		return out
	}
	for _, mc := range c.Modes {
		if m, err := mc.Mode(); err == nil {
			out[m.Name] = m
		}
	}
	return out
}

// QueueCapacities maps each mode name to its queue capacity.
func (c *GameConfig) QueueCapacities() map[string]int {
	out := map[string]int{}
	if c != nil {
		for _, mc := range c.Modes {
			out[strings.ToLower(mc.Name)] = mc.QueueCapacity
		}
	}
	for name := range c.ModeSet() {
		if _, ok := out[name]; !ok {
			out[name] = 0
		}
	}
	return out
}

// ShopItems converts the configured shop, falling back to the default catalogue.
func (c *GameConfig) ShopItems() domain.Shop {
	if c == nil || len(c.Shop) == 0 {
		return domain.DefaultShop()
	}
	shop := make(domain.Shop, len(c.Shop))
	for _, it := range c.Shop {
		shop[it.ID] = domain.Item{ID: it.ID, Name: it.Name, Cost: it.Cost, Armor: it.Armor}
	}
	return shop
}

// ArenaNames lists configured arenas alphabetically.
func (c *GameConfig) ArenaNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Arenas))
	for _, a := range c.Arenas {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

func (a ArenaConfig) Layout() domain.Layout {
	l := domain.Layout{
		Name:      a.Name,
		Spawns:    map[domain.Side][]domain.Vec3{},
		BuyTime:   time.Duration(a.BuyTimeSeconds) * time.Second,
		RoundTime: time.Duration(a.RoundTimeSeconds) * time.Second,
	}
	for _, s := range a.Sites {
		site := domain.SiteRegion{Name: s.Name, Center: s.Center.vec(), Radius: s.Radius}
		for _, p := range s.PlantPoints {
			site.PlantPoints = append(site.PlantPoints, p.vec())
		}
		l.Sites = append(l.Sites, site)
	}
	for _, p := range a.AttackerSpawns {
		l.Spawns[domain.SideAttacker] = append(l.Spawns[domain.SideAttacker], p.vec())
	}
	for _, p := range a.DefenderSpawns {
		l.Spawns[domain.SideDefender] = append(l.Spawns[domain.SideDefender], p.vec())
	}
	for _, z := range a.BuyZones {
		side, _ := parseSide(z.Side)
		l.BuyZones = append(l.BuyZones, domain.BuyZone{Side: side, Corner: z.Corner.vec(), Other: z.Other.vec()})
	}
	return l
}

// Mode converts the entry, starting from the built-in mode of the same name when one exists.
func (mc ModeConfig) Mode() (domain.Mode, error) {
	name := strings.ToLower(mc.Name)
	if name == "" {
		return domain.Mode{}, fmt.Errorf("mode without a name")
	}
	m, _ := domain.LookupMode(name)
	m.Name = name
	if mc.MinPerTeam > 0 {
		m.MinPerTeam = mc.MinPerTeam
	}
	if mc.MaxPerTeam > 0 {
		m.MaxPerTeam = mc.MaxPerTeam
	}
	if mc.RoundsToWin > 0 {
		m.RoundsToWin = mc.RoundsToWin
	}
	if mc.MaxRounds > 0 {
		m.MaxRounds = mc.MaxRounds
	}
	if mc.BuyTimeSeconds > 0 {
		m.BuyTime = time.Duration(mc.BuyTimeSeconds) * time.Second
	}
	if mc.RoundTimeSeconds > 0 {
		m.RoundTime = time.Duration(mc.RoundTimeSeconds) * time.Second
	}
	if mc.Rules != "" || m.Rules == nil {
		rules, err := parseRules(mc.Rules, mc.HitLimit)
		if err != nil {
			return domain.Mode{}, fmt.Errorf("mode %s: %w", name, err)
		}
		m.Rules = rules
	}
	if box, ok := m.Rules.(domain.BoxingRules); ok && mc.HitLimit > 0 {
		box.HitLimit = mc.HitLimit
		m.Rules = box
	}
	if m.MinPerTeam < 1 || m.MaxPerTeam < m.MinPerTeam || m.RoundsToWin < 1 {
		return domain.Mode{}, fmt.Errorf("mode %s: invalid team sizes or round limits", name)
	}
	return m, nil
}

func parseRules(name string, hitLimit int) (domain.RoundRules, error) {
	switch strings.ToLower(name) {
	case "", "spike":
		return domain.SpikeRules{}, nil
	case "duel":
		return domain.DuelRules{}, nil
	case "boxing":
		if hitLimit <= 0 {
			hitLimit = domain.DefaultHitLimit
		}
		return domain.BoxingRules{HitLimit: hitLimit}, nil
	case "sumo":
		return domain.SumoRules{}, nil
	default:
		return nil, fmt.Errorf("unknown rules %q", name)
	}
}

func parseSide(s string) (domain.Side, error) {
	switch domain.Side(strings.ToLower(s)) {
	case domain.SideAttacker:
		return domain.SideAttacker, nil
	case domain.SideDefender:
		return domain.SideDefender, nil
	default:
		return domain.SideNone, fmt.Errorf("unknown side %q", s)
	}
}
