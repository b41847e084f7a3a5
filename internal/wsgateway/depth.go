package wsgateway

import "exchange-core/internal/orderbook"

type depthLevel struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

type depthSnapshot struct {
	Bids []depthLevel `json:"bids"`
	Asks []depthLevel `json:"asks"`
}

func depthPayload(bids, asks []*orderbook.PriceLevel) depthSnapshot {
	snap := depthSnapshot{
		Bids: make([]depthLevel, 0, len(bids)),
		Asks: make([]depthLevel, 0, len(asks)),
	}
	for _, lvl := range bids {
		snap.Bids = append(snap.Bids, depthLevel{Price: lvl.Price.String(), Qty: lvl.TotalQty.String()})
	}
	for _, lvl := range asks {
		snap.Asks = append(snap.Asks, depthLevel{Price: lvl.Price.String(), Qty: lvl.TotalQty.String()})
	}
	return snap
}
