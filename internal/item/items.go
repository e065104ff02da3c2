// Package item classifies staked collectibles and holds the reward weight
// of each classified type.
package item

import (
	"fmt"

	"hive-staking/internal/model"
)

// ItemConfig describes one classified item type.
type ItemConfig struct {
	Type        model.ItemType
	Emoji       string
	Weight      uint64
	Description string
}

// Catalogue contains the default configuration of every item type.
var Catalogue = map[model.ItemType]ItemConfig{
	model.ItemQueen: {
		Type:        model.ItemQueen,
		Emoji:       "👑",
		Weight:      50,
		Description: "Body trait is Queen",
	},
	model.ItemWorker: {
		Type:        model.ItemWorker,
		Emoji:       "💎",
		Weight:      30,
		Description: "Wings trait is Diamond",
	},
	model.ItemDrone: {
		Type:        model.ItemDrone,
		Emoji:       "🐝",
		Weight:      20,
		Description: "Everything else",
	},
}

// GetAllItems returns the catalogue in display order.
func GetAllItems() []ItemConfig {
	items := make([]ItemConfig, 0, len(Catalogue))
	for _, t := range model.ItemTypes() {
		if cfg, ok := Catalogue[t]; ok {
			items = append(items, cfg)
		}
	}
	return items
}

// WeightTable maps item types to reward weights. It is read-only once built;
// a different schedule needs a new table and a new engine.
type WeightTable struct {
	weights map[model.ItemType]uint64
}

// DefaultWeights returns the table built from Catalogue.
func DefaultWeights() WeightTable {
	weights := make(map[model.ItemType]uint64, len(Catalogue))
	for t, cfg := range Catalogue {
		weights[t] = cfg.Weight
	}
	return WeightTable{weights: weights}
}

// NewWeightTable builds a table from type names. Every known type must be
// present; unknown names are rejected.
func NewWeightTable(weights map[string]uint64) (WeightTable, error) {
	table := WeightTable{weights: make(map[model.ItemType]uint64, len(weights))}
	for name, w := range weights {
		t, ok := ParseType(name)
		if !ok {
			return WeightTable{}, fmt.Errorf("unknown item type %q", name)
		}
		table.weights[t] = w
	}
	for _, t := range model.ItemTypes() {
		if _, ok := table.weights[t]; !ok {
			return WeightTable{}, fmt.Errorf("missing weight for item type %q", t)
		}
	}
	return table, nil
}

// Weight returns the weight of t, zero for unknown types.
func (w WeightTable) Weight(t model.ItemType) uint64 {
	return w.weights[t]
}

// StakeWeight sums the weights of every item in types.
func (w WeightTable) StakeWeight(types map[string]model.ItemType) uint64 {
	var total uint64
	for _, t := range types {
		total += w.weights[t]
	}
	return total
}

// ParseType resolves a type name as written in configuration.
func ParseType(name string) (model.ItemType, bool) {
	switch name {
	case "Queen", "queen":
		return model.ItemQueen, true
	case "Worker", "worker":
		return model.ItemWorker, true
	case "Drone", "drone":
		return model.ItemDrone, true
	}
	return "", false
}
