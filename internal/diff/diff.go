// Package diff computes the minimal set of cancels and placements
// needed to move a token's resting orders from their current state to
// a Solver-desired quote ladder, preserving FIFO queue priority:
// when a price level needs to shrink, the oldest orders at that price
// are kept and the newest are cancelled, since age (not order ID)
// determines queue position on the venue.
package diff

import (
	"math"
	"sort"

	"github.com/YuriAllexei/polypolypoly-sub000/pkg/types"
)

const (
	sizeTolerancePct = 0.01
	sizeToleranceAbs = 0.1
)

// LimitOrder is a new resting order diff wants placed.
type LimitOrder struct {
	TokenID string
	Price   float64
	Size    float64
	Side    types.Side
}

// Orders computes (orderIDsToCancel, ordersToPlace) for one token given
// its currently-resting orders and the Solver's desired ladder for that
// token. Quotes with a duplicate price key keep the larger size; the
// smaller is dropped (a solver bug, not a diff decision, but diff must
// not silently lose size either way).
func Orders(current []types.TrackedOrder, desired []types.Quote, tokenID string) ([]string, []LimitOrder) {
	var toCancel []string
	var toPlace []LimitOrder

	currentByPrice := groupOrdersByPrice(current)
	desiredByPrice := groupQuotesByPrice(desired)

	keySet := make(map[int64]struct{}, len(currentByPrice)+len(desiredByPrice))
	for k := range currentByPrice {
		keySet[k] = struct{}{}
	}
	for k := range desiredByPrice {
		keySet[k] = struct{}{}
	}
	keys := make([]int64, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		orders, hasOrders := currentByPrice[key]
		quote, hasQuote := desiredByPrice[key]

		switch {
		case hasOrders && !hasQuote:
			for _, o := range orders {
				toCancel = append(toCancel, o.OrderID)
			}
		case !hasOrders && hasQuote:
			if quote.Size >= types.MinOrderSize {
				toPlace = append(toPlace, LimitOrder{TokenID: tokenID, Price: quote.Price, Size: quote.Size, Side: quote.Side})
			}
		case hasOrders && hasQuote:
			cancels, place := adjustSizeAtPrice(orders, quote, tokenID)
			toCancel = append(toCancel, cancels...)
			if place != nil {
				toPlace = append(toPlace, *place)
			}
		}
	}

	return toCancel, toPlace
}

func groupOrdersByPrice(orders []types.TrackedOrder) map[int64][]types.TrackedOrder {
	m := make(map[int64][]types.TrackedOrder)
	for _, o := range orders {
		key := types.PriceKey(o.Price)
		m[key] = append(m[key], o)
	}
	return m
}

func groupQuotesByPrice(quotes []types.Quote) map[int64]types.Quote {
	m := make(map[int64]types.Quote)
	for _, q := range quotes {
		key := types.PriceKey(q.Price)
		if existing, ok := m[key]; ok {
			if q.Size > existing.Size {
				m[key] = q
			}
			continue
		}
		m[key] = q
	}
	return m
}

func adjustSizeAtPrice(orders []types.TrackedOrder, quote types.Quote, tokenID string) ([]string, *LimitOrder) {
	desiredSize := quote.Size
	currentTotal := 0.0
	for _, o := range orders {
		currentTotal += o.Remaining()
	}

	tolerance := math.Max(desiredSize*sizeTolerancePct, sizeToleranceAbs)

	if math.Abs(currentTotal-desiredSize) < tolerance {
		return nil, nil
	}

	if currentTotal < desiredSize {
		additional := math.Round(desiredSize - currentTotal)
		if additional >= types.MinOrderSize {
			return nil, &LimitOrder{TokenID: tokenID, Price: quote.Price, Size: additional, Side: quote.Side}
		}
		return nil, nil
	}

	sorted := make([]types.TrackedOrder, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	kept := make(map[string]struct{}, len(sorted))
	keptSum := 0.0
	for _, o := range sorted {
		if keptSum+o.Remaining() <= desiredSize+tolerance {
			keptSum += o.Remaining()
			kept[o.OrderID] = struct{}{}
		} else {
			break
		}
	}

	var toCancel []string
	for _, o := range orders {
		if _, ok := kept[o.OrderID]; !ok {
			toCancel = append(toCancel, o.OrderID)
		}
	}

	remainder := math.Round(desiredSize - keptSum)
	var place *LimitOrder
	if remainder >= types.MinOrderSize {
		place = &LimitOrder{TokenID: tokenID, Price: quote.Price, Size: remainder, Side: quote.Side}
	}
	return toCancel, place
}
