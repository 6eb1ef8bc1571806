package credit

const (
	operationDeduct     = "deduct"
	operationCredit     = "credit"
	operationChangeRole = "change_role"
	operationInitialize = "initialize"
	operationPurchase   = "purchase"
	operationSetStatus  = "set_status"
	operationRefresh    = "daily_refresh"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	idempotencyKeyDelimiter  = ":"
	idempotencyPrefixRefresh = "daily_refresh"
	idempotencyPrefixSignup  = "initial_signup"

	reasonDailyRefresh  = "daily_refresh"
	reasonInitialSignup = "initial_signup"
	reasonRoleChange    = "role_change"

	secondsPerDay = 24 * 60 * 60

	transactionIDPrefix = "tx_"
)
