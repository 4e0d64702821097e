package domain

import (
	"math"
	"time"
)

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the euclidean distance between two points.
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// SiteRegion is a named plant site: a sphere around Center with suggested plant points.
type SiteRegion struct {
	Name        string
	Center      Vec3
	Radius      float64
	PlantPoints []Vec3
}

// Contains reports whether p lies within the site radius.
func (s SiteRegion) Contains(p Vec3) bool {
	return s.Center.Distance(p) <= s.Radius
}

// BuyZone is an axis-aligned box where a side may purchase during the buy phase.
type BuyZone struct {
	Side   Side
	Corner Vec3
	Other  Vec3
}

// Contains reports whether p lies inside the box, corners inclusive.
func (b BuyZone) Contains(p Vec3) bool {
	within := func(v, a, c float64) bool {
		return v >= math.Min(a, c) && v <= math.Max(a, c)
	}
	return within(p.X, b.Corner.X, b.Other.X) &&
		within(p.Y, b.Corner.Y, b.Other.Y) &&
		within(p.Z, b.Corner.Z, b.Other.Z)
}

// Layout is the static content of an arena.
type Layout struct {
	Name      string
	Sites     []SiteRegion
	Spawns    map[Side][]Vec3
	BuyZones  []BuyZone
	BuyTime   time.Duration
	RoundTime time.Duration
}

// Default phase lengths used when neither the layout nor the mode sets one.
const (
	DefaultBuyTime   = 30 * time.Second
	DefaultRoundTime = 100 * time.Second
)

// SiteAt returns the first site containing p.
func (l Layout) SiteAt(p Vec3) (SiteRegion, bool) {
	for _, site := range l.Sites {
		if site.Contains(p) {
			return site, true
		}
	}
	return SiteRegion{}, false
}

// InBuyZone reports whether side may buy at p. A layout without zones for the side allows buying anywhere.
func (l Layout) InBuyZone(side Side, p Vec3) bool {
	found := false
	for _, zone := range l.BuyZones {
		if zone.Side != side {
			continue
		}
		found = true
		if zone.Contains(p) {
			return true
		}
	}
	return !found
}

// SpawnPoint picks the i-th spawn for a side, wrapping around. Layouts without spawns yield the origin.
func (l Layout) SpawnPoint(side Side, i int) Vec3 {
	spawns := l.Spawns[side]
	if len(spawns) == 0 {
		return Vec3{}
	}
	if i < 0 {
		i = -i
	}
	return spawns[i%len(spawns)]
}
