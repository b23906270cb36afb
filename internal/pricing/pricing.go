package pricing

import (
	"slices"

	"github.com/shopspring/decimal"

	"laroza/backend/internal/domain"
)

// VisaFeeRate applies to card payments taken at the boutique. The fee it
// yields is rounded half away from zero to cents, so sub-cent subtotals do
// not get exactly rate times subtotal: 0.10 is charged 0.01, not 0.005.
var VisaFeeRate = decimal.RequireFromString("0.05")

var allowedMethods = map[string][]string{
	domain.StoreTypeBoutique: {domain.PaymentMethodCash, domain.PaymentMethodVisa},
	domain.StoreTypeOnline:   {domain.PaymentMethodCashOnDelivery, domain.PaymentMethodBankTransfer},
}

// ComputeFee returns the channel fee for a subtotal, rounded to cents.
func ComputeFee(subtotal decimal.Decimal, paymentMethod string, storeType string) decimal.Decimal {
	if storeType == domain.StoreTypeBoutique && paymentMethod == domain.PaymentMethodVisa {
		return subtotal.Mul(VisaFeeRate).Round(2)
	}
	return decimal.Zero
}

func AllowedPaymentMethods(storeType string) []string {
	return slices.Clone(allowedMethods[storeType])
}

func IsPaymentMethodAllowed(storeType string, paymentMethod string) bool {
	return slices.Contains(allowedMethods[storeType], paymentMethod)
}

// ChannelForStore maps a store partition to its sales channel.
func ChannelForStore(storeType string) string {
	switch storeType {
	case domain.StoreTypeBoutique:
		return domain.ChannelInStore
	case domain.StoreTypeOnline:
		return domain.ChannelOnline
	default:
		return ""
	}
}
