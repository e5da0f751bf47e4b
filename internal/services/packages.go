package services

import "github.com/shopspring/decimal"

// TokenPackage is a purchasable bundle. Price is in major units of Currency.
type TokenPackage struct {
	ID          string          `json:"id"`
	Tokens      int64           `json:"tokens"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

var tokenPackages = []TokenPackage{
	{ID: "basic", Tokens: 10000, Price: decimal.NewFromInt(499), Currency: "INR", Description: "Basic Package"},
	{ID: "standard", Tokens: 25000, Price: decimal.NewFromInt(999), Currency: "INR", Description: "Standard Package"},
	{ID: "premium", Tokens: 50000, Price: decimal.NewFromInt(1799), Currency: "INR", Description: "Premium Package"},
}

func Packages() []TokenPackage {
	out := make([]TokenPackage, len(tokenPackages))
	copy(out, tokenPackages)
	return out
}

func PackageByID(id string) (TokenPackage, error) {
	for _, pkg := range tokenPackages {
		if pkg.ID == id {
			return pkg, nil
		}
	}
	return TokenPackage{}, ErrInvalidPackage
}
