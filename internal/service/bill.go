package service

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tabslip/api/internal/store"
)

// BillLine is one merged line of a consolidated bill.
type BillLine struct {
	ProductID      uuid.UUID
	Name           string
	AddonNames     []string
	Quantity       int32
	UnitPrice      decimal.Decimal
	AddonUnitPrice decimal.Decimal
	Subtotal       decimal.Decimal
}

// ConsolidatedBill is the merged, de-duplicated total across a session's
// surviving orders. It is derived on demand and never cached.
type ConsolidatedBill struct {
	SessionID   uuid.UUID
	TableNumber int32
	Lines       []BillLine
	Subtotal    decimal.Decimal
	Total       decimal.Decimal
	OrderCount  int32
}

// ConsolidateBill merges a session's order items into a consolidated
// bill. Items merge on (product id, unit-price snapshot, sorted add-on
// set including prices); quantities sum and each merged line keeps its
// first-seen position so repeated
// calls render stably. Cancelled orders never reach this function.
// An empty item set yields a valid zero-total bill.
func ConsolidateBill(session store.Session, items []store.BillSourceItem) ConsolidatedBill {
	bill := ConsolidatedBill{
		SessionID:   session.ID,
		TableNumber: session.TableNumber,
		Subtotal:    decimal.Zero,
		Total:       decimal.Zero,
	}

	lineIndex := make(map[string]int)
	orders := make(map[uuid.UUID]struct{})

	for _, item := range items {
		orders[item.OrderID] = struct{}{}

		key := mergeKey(item)
		idx, ok := lineIndex[key]
		if !ok {
			addonNames := make([]string, 0, len(item.Addons))
			addonUnit := decimal.Zero
			for _, a := range item.Addons {
				addonNames = append(addonNames, a.Name)
				addonUnit = addonUnit.Add(a.Price)
			}
			bill.Lines = append(bill.Lines, BillLine{
				ProductID:      item.ProductID,
				Name:           item.Name,
				AddonNames:     addonNames,
				UnitPrice:      item.UnitPrice,
				AddonUnitPrice: addonUnit,
			})
			idx = len(bill.Lines) - 1
			lineIndex[key] = idx
		}
		bill.Lines[idx].Quantity += item.Quantity
	}

	for i := range bill.Lines {
		line := &bill.Lines[i]
		qty := decimal.NewFromInt32(line.Quantity)
		line.Subtotal = line.UnitPrice.Mul(qty).Add(line.AddonUnitPrice.Mul(qty))
		bill.Subtotal = bill.Subtotal.Add(line.Subtotal)
	}

	bill.Total = bill.Subtotal
	bill.OrderCount = int32(len(orders))
	return bill
}

// mergeKey is the line identity: product id, unit-price snapshot, and
// the sorted set of add-on (id, price) pairs. "Momo" and "Momo+Cheese"
// stay separate lines, and so do two snapshots of the same product at
// different prices, so merging never reprices either order.
func mergeKey(item store.BillSourceItem) string {
	if len(item.Addons) == 0 {
		return item.ProductID.String() + "|" + item.UnitPrice.String()
	}
	addonKeys := make([]string, len(item.Addons))
	for i, a := range item.Addons {
		addonKeys[i] = a.AddonID.String() + ":" + a.Price.String()
	}
	sort.Strings(addonKeys)
	return item.ProductID.String() + "|" + item.UnitPrice.String() + "|" + strings.Join(addonKeys, ",")
}
