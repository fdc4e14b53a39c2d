package core

import "clinicore/pkg/domain"

type (
	Session         = domain.Session
	Result          = domain.Result
	Violation       = domain.Violation
	ListFilter      = domain.ListFilter
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
	RulesEngine     = domain.RulesEngine
	Rule            = domain.Rule
)
