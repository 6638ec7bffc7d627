package snapshot

import (
	"github.com/shopspring/decimal"

	"ledgersync/internal/domain/account"
)

// Classify sums balances by coarse account type.
//
// Depository and investment balances are assets. Credit and loan balances are
// liabilities when positive (money owed); a negative balance on those types is an
// overpayment and counts as an asset. Anything else is an asset.
func Classify(accounts []*account.Account) Totals {
	assets := decimal.Zero
	liabilities := decimal.Zero

	for _, a := range accounts {
		switch a.Type {
		case account.TypeCredit, account.TypeLoan:
			if a.CurrentBalance.IsPositive() {
				liabilities = liabilities.Add(a.CurrentBalance)
			} else {
				assets = assets.Add(a.CurrentBalance.Abs())
			}
		default:
			assets = assets.Add(a.CurrentBalance)
		}
	}

	return Totals{
		Assets:       assets,
		Liabilities:  liabilities,
		NetWorth:     assets.Sub(liabilities),
		AccountCount: len(accounts),
	}
}
