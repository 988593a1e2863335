package cart

import "errors"

const AggregateType = "Cart"

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidProduct  = errors.New("product_id is required")
)

// LineItem is one cart entry: a product (and optional variant) with a quantity.
// Prices are integer minor units (cents).
type LineItem struct {
	ProductID     string `json:"product_id"`
	VariantID     string `json:"variant_id,omitempty"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"original_price,omitempty"`
	Image         string `json:"image,omitempty"`
	Quantity      int    `json:"quantity"`
}

// SameLine reports whether two entries share the identity key
// (product_id, variant_id). Same product with a different variant is a
// distinct line.
func (i LineItem) SameLine(productID, variantID string) bool {
	return i.ProductID == productID && i.VariantID == variantID
}

// State is the cart contents plus derived totals. Total and ItemCount
// are maintained by Apply on every transition; after any action
// Total == Σ(price*quantity) and ItemCount == Σ(quantity).
type State struct {
	Items     []LineItem `json:"items"`
	Total     int64      `json:"total"`
	ItemCount int        `json:"item_count"`
}

// Empty returns a cart with no items.
func Empty() State {
	return State{Items: []LineItem{}}
}

// Action is a cart transition. The concrete types form a tagged union
// consumed by Apply.
type Action interface {
	isAction()
}

// AddItem appends a new line or, if a line with the same identity key
// exists, increments its quantity. Item.Quantity <= 0 counts as 1.
type AddItem struct {
	Item LineItem
}

// RemoveItem drops the whole line regardless of quantity. Unknown keys
// are a no-op.
type RemoveItem struct {
	ProductID string
	VariantID string
}

// SetQuantity sets a line's quantity. Quantity <= 0 removes the line.
type SetQuantity struct {
	ProductID string
	VariantID string
	Quantity  int
}

// Clear resets the cart to empty.
type Clear struct{}

func (AddItem) isAction()     {}
func (RemoveItem) isAction()  {}
func (SetQuantity) isAction() {}
func (Clear) isAction()       {}

// Apply is the pure transition function. It never mutates the input
// state and keeps the Total/ItemCount invariants in the same step as
// the items change.
func Apply(s State, action Action) State {
	switch a := action.(type) {
	case AddItem:
		return applyAdd(s, a.Item)
	case RemoveItem:
		return applyRemove(s, a.ProductID, a.VariantID)
	case SetQuantity:
		if a.Quantity <= 0 {
			return applyRemove(s, a.ProductID, a.VariantID)
		}
		return applySetQuantity(s, a.ProductID, a.VariantID, a.Quantity)
	case Clear:
		return Empty()
	}
	return s
}

func applyAdd(s State, item LineItem) State {
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}

	next := cloneItems(s.Items)
	for idx := range next {
		if next[idx].SameLine(item.ProductID, item.VariantID) {
			next[idx].Quantity += qty
			return State{
				Items:     next,
				Total:     s.Total + item.Price*int64(qty),
				ItemCount: s.ItemCount + qty,
			}
		}
	}

	item.Quantity = qty
	next = append(next, item)
	return State{
		Items:     next,
		Total:     s.Total + item.Price*int64(qty),
		ItemCount: s.ItemCount + qty,
	}
}

func applyRemove(s State, productID, variantID string) State {
	next := make([]LineItem, 0, len(s.Items))
	total := s.Total
	count := s.ItemCount
	for _, it := range s.Items {
		if it.SameLine(productID, variantID) {
			total -= it.Price * int64(it.Quantity)
			count -= it.Quantity
			continue
		}
		next = append(next, it)
	}
	if total < 0 {
		total = 0
	}
	if count < 0 {
		count = 0
	}
	return State{Items: next, Total: total, ItemCount: count}
}

func applySetQuantity(s State, productID, variantID string, quantity int) State {
	next := cloneItems(s.Items)
	for idx := range next {
		if !next[idx].SameLine(productID, variantID) {
			continue
		}
		delta := quantity - next[idx].Quantity
		next[idx].Quantity = quantity
		return State{
			Items:     next,
			Total:     s.Total + next[idx].Price*int64(delta),
			ItemCount: s.ItemCount + delta,
		}
	}
	// Unknown line: no-op rather than inventing an entry.
	return s
}

func cloneItems(items []LineItem) []LineItem {
	next := make([]LineItem, len(items))
	copy(next, items)
	return next
}
