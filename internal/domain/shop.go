package domain

// Item is something purchasable during the buy phase.
type Item struct {
	ID    string
	Name  string
	Cost  int
	Armor int
}

// Shop indexes purchasable items by id.
type Shop map[string]Item

// DefaultShop is used when no shop is configured.
func DefaultShop() Shop {
	return Shop{
		"classic":     {ID: "classic", Name: "Classic", Cost: 0},
		"ghost":       {ID: "ghost", Name: "Ghost", Cost: 500},
		"spectre":     {ID: "spectre", Name: "Spectre", Cost: 1600},
		"vandal":      {ID: "vandal", Name: "Vandal", Cost: 2900},
		"phantom":     {ID: "phantom", Name: "Phantom", Cost: 2900},
		"operator":    {ID: "operator", Name: "Operator", Cost: 4700},
		"light_armor": {ID: "light_armor", Name: "Light Shields", Cost: 400, Armor: 25},
		"heavy_armor": {ID: "heavy_armor", Name: "Heavy Shields", Cost: 1000, Armor: 50},
	}
}
