package credit

// RoleAmounts holds one credit amount per tier. The struct form keeps the
// tier set closed at compile time instead of behind string-keyed maps.
type RoleAmounts struct {
	Free       Credits
	Pro        Credits
	Enterprise Credits
}

// ForRole selects the amount configured for a role.
func (amounts RoleAmounts) ForRole(role Role) Credits {
	switch role {
	case RoleFree:
		return amounts.Free
	case RolePro:
		return amounts.Pro
	case RoleEnterprise:
		return amounts.Enterprise
	}
	return 0
}

// Per-action credit costs by tier. Enterprise is the unlimited tier and
// always costs zero.
var creditCosts = map[ActionType]RoleAmounts{
	ActionDirectGeneration:    {Free: 5, Pro: 3, Enterprise: 0},
	ActionDiscoveryGeneration: {Free: 8, Pro: 5, Enterprise: 0},
	ActionIdeaModification:    {Free: 3, Pro: 2, Enterprise: 0},
}

// Daily allowance granted once per rolling 24h window. Only pro accounts
// receive a daily top-up.
var dailyAllowances = RoleAmounts{Free: 0, Pro: 5, Enterprise: 0}

// Credits granted when an account is first initialized.
var signupGrants = RoleAmounts{Free: 3, Pro: 10, Enterprise: 0}

// CostOf returns the configured cost of an action for a role. An
// unrecognized action costs zero, matching the original cost-table fallback;
// callers validating input through ParseActionType never reach that path.
func CostOf(action ActionType, role Role) Credits {
	amounts, ok := creditCosts[action]
	if !ok {
		return 0
	}
	return amounts.ForRole(role)
}

// DailyAllowanceFor returns the daily top-up amount for a role.
func DailyAllowanceFor(role Role) Credits {
	return dailyAllowances.ForRole(role)
}

// SignupGrantFor returns the starting balance for a role.
func SignupGrantFor(role Role) Credits {
	return signupGrants.ForRole(role)
}
