package domain

// Account identifies the trading account every component acts for. It is
// passed explicitly to constructors; nothing in the core reads a global.
type Account struct {
	ID     string
	Name   string
	Wallet string
}
