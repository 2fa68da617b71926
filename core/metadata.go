package core

// LineItem is one priced entry in an OrderMetadata/Invoice (SPEC_FULL.md §C).
type LineItem struct {
	Description string
	Quantity    int64
	UnitPrice   Amount
}

// Total returns quantity * unit price for the line item.
func (l LineItem) Total() Amount {
	return l.UnitPrice.MulRatDiv(l.Quantity, 1, RoundNearest)
}

// OrderMetadata is structured order/tax/shipping data carried opaquely in a
// Receipt's metadata field (SPEC_FULL.md §C, grounded on
// original_source/paykit-interactive/src/metadata/mod.rs).
type OrderMetadata struct {
	Items    []LineItem
	Tax      Amount
	Shipping Amount
	Discount Amount
	Notes    string
}

// Invoice totals its line items (Subtotal) and, with tax, shipping and
// discount passed to Total, the amount due, all sharing one currency per spec §3's no-cross-currency-arithmetic
// invariant.
type Invoice struct {
	LineItems []LineItem
	Currency  string
}

// Subtotal sums every line item's total.
func (inv Invoice) Subtotal() (Amount, error) {
	sum := NewAmount(0, 0, inv.Currency)
	for _, li := range inv.LineItems {
		var err error
		sum, err = sum.Add(li.Total())
		if err != nil {
			return Amount{}, err
		}
	}
	return sum, nil
}

// Total computes Subtotal + tax + shipping - discount.
func (inv Invoice) Total(tax, shipping, discount Amount) (Amount, error) {
	subtotal, err := inv.Subtotal()
	if err != nil {
		return Amount{}, err
	}
	total, err := subtotal.Add(tax)
	if err != nil {
		return Amount{}, err
	}
	total, err = total.Add(shipping)
	if err != nil {
		return Amount{}, err
	}
	return total.Sub(discount)
}
