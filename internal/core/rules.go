package core

import "clinicore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewInventoryBalanceRule())
	engine.Register(NewDispenseQuantityRule())
	return engine
}
