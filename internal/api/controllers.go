package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"exchange-core/internal/exchange"
	"exchange-core/internal/klines"
	"exchange-core/internal/orderbook"
)

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) serverTime(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"serverTime": s.Exchange.Clock().NowMS()})
}

func (s *Server) exchangeInfo(c *gin.Context) {
	symbols := s.Exchange.Symbols()
	out := make([]gin.H, 0, len(symbols))
	for _, info := range symbols {
		out = append(out, gin.H{
			"symbol":         info.Symbol,
			"baseAsset":      info.BaseAsset,
			"quoteAsset":     info.QuoteAsset,
			"pricePrecision": info.PricePrecision,
			"qtyPrecision":   info.QtyPrecision,
			"minQty":         info.MinQty.String(),
			"minNotional":    info.MinNotional.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"serverTime": s.Exchange.Clock().NowMS(), "symbols": out})
}

func (s *Server) metrics(c *gin.Context) {
	stats := s.Exchange.Bus().Stats()
	c.JSON(http.StatusOK, gin.H{
		"eventsPublished":   stats.EventsPublished,
		"eventsProcessed":   stats.EventsProcessed,
		"eventsFailed":      stats.EventsFailed,
		"subscriberCount":   stats.SubscriberCount,
		"queueSize":         stats.QueueSize,
		"uptimeSeconds":     stats.Uptime.Seconds(),
		"avgProcessingTime": stats.AvgProcessingTime.String(),
	})
}

func (s *Server) ticker(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, &exchange.ValidationError{Field: "symbol", Reason: "required"})
		return
	}
	q, ok := s.Exchange.Quotes().Get(symbol)
	if !ok {
		respondError(c, &exchange.ValidationError{Field: "symbol", Reason: "no trades recorded yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"price":     q.LastPrice.String(),
		"bidPrice":  q.BestBid.String(),
		"askPrice":  q.BestAsk.String(),
		"updatedAt": q.UpdatedAt.UnixMilli(),
	})
}

func (s *Server) depth(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, &exchange.ValidationError{Field: "symbol", Reason: "required"})
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	bids, asks, err := s.Exchange.Depth(symbol, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	toRows := func(levels []*orderbook.PriceLevel) [][2]string {
		rows := make([][2]string, 0, len(levels))
		for _, lvl := range levels {
			rows = append(rows, [2]string{lvl.Price.String(), lvl.TotalQty.String()})
		}
		return rows
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":       symbol,
		"lastUpdateId": s.Exchange.Clock().NowMS(),
		"bids":         toRows(bids),
		"asks":         toRows(asks),
	})
}

func (s *Server) klinesHandler(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := klines.Interval(c.Query("interval"))
	if symbol == "" || interval.Millis() == 0 {
		respondError(c, &exchange.ValidationError{Field: "symbol/interval", Reason: "required and must be a supported interval"})
		return
	}

	limit := 500
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	startMS := parseInt64(c.Query("startTime"), 0)
	endMS := parseInt64(c.Query("endTime"), 0)

	candles := s.Exchange.Klines().Klines(symbol, interval, startMS, endMS, limit)
	out := make([][]interface{}, 0, len(candles))
	for _, k := range candles {
		out = append(out, []interface{}{
			k.OpenTime, k.Open.String(), k.High.String(), k.Low.String(), k.Close.String(),
			k.Volume.String(), k.CloseTime, k.Trades,
		})
	}
	c.JSON(http.StatusOK, out)
}

func parseInt64(v string, def int64) int64 {
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// orderRequestBody is the Binance-shaped JSON body for POST /order and
// /order/test.
type orderRequestBody struct {
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Type             string `json:"type"`
	TimeInForce      string `json:"timeInForce"`
	Quantity         string `json:"quantity"`
	QuoteOrderQty    string `json:"quoteOrderQty"`
	Price            string `json:"price"`
	StopPrice        string `json:"stopPrice"`
	TrailAmount      string `json:"trailAmount"`
	TrailIsPercent   bool   `json:"trailIsPercent"`
	DisplayQty       string `json:"icebergQty"`
	NewClientOrderID string `json:"newClientOrderId"`
	STP              string `json:"selfTradePreventionMode"`
	RecvWindow       int64  `json:"recvWindow"`
	Timestamp        int64  `json:"timestamp"`
	AlgoSlices       int    `json:"algoSlices"`
	AlgoIntervalMS   int64  `json:"algoIntervalMs"`
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseSide(s string) (orderbook.Side, bool) {
	switch strings.ToUpper(s) {
	case "BUY":
		return orderbook.Buy, true
	case "SELL":
		return orderbook.Sell, true
	default:
		return 0, false
	}
}

func parseType(s string) (orderbook.Type, bool) {
	switch strings.ToUpper(s) {
	case "LIMIT":
		return orderbook.Limit, true
	case "MARKET":
		return orderbook.Market, true
	case "STOP":
		return orderbook.Stop, true
	case "STOP_LIMIT":
		return orderbook.StopLimit, true
	case "TRAILING_STOP":
		return orderbook.TrailingStop, true
	case "ICEBERG":
		return orderbook.Iceberg, true
	case "TWAP":
		return orderbook.TWAP, true
	case "VWAP":
		return orderbook.VWAP, true
	default:
		return 0, false
	}
}

func parseTIF(s string) orderbook.TimeInForce {
	switch strings.ToUpper(s) {
	case "IOC":
		return orderbook.IOC
	case "FOK":
		return orderbook.FOK
	default:
		return orderbook.GTC
	}
}

func parseSTP(s string) orderbook.SelfTradePrevention {
	switch strings.ToUpper(s) {
	case "EXPIRE_TAKER":
		return orderbook.STPExpireTaker
	case "EXPIRE_MAKER":
		return orderbook.STPExpireMaker
	case "EXPIRE_BOTH":
		return orderbook.STPExpireBoth
	default:
		return orderbook.STPNone
	}
}

func (s *Server) toOrderRequest(c *gin.Context, userID string) (*exchange.OrderRequest, bool) {
	var body orderRequestBody
	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "Mandatory parameter was not sent, was empty/null, or malformed."})
		return nil, false
	}

	if body.Timestamp != 0 && !checkTimestamp(c, s.Exchange.Clock().NowMS(), body.Timestamp, body.RecvWindow) {
		return nil, false
	}

	side, ok := parseSide(body.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "invalid side"})
		return nil, false
	}
	typ, ok := parseType(body.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "invalid type"})
		return nil, false
	}

	req := &exchange.OrderRequest{
		Symbol:         body.Symbol,
		UserID:         userID,
		ClientOrderID:  body.NewClientOrderID,
		Side:           side,
		Type:           typ,
		TimeInForce:    parseTIF(body.TimeInForce),
		STP:            parseSTP(body.STP),
		Price:          dec(body.Price),
		Quantity:       dec(body.Quantity),
		QuoteOrderQty:  dec(body.QuoteOrderQty),
		StopPrice:      dec(body.StopPrice),
		TrailAmount:    dec(body.TrailAmount),
		TrailIsPercent: body.TrailIsPercent,
		DisplayQty:     dec(body.DisplayQty),
	}

	if typ == orderbook.TWAP || typ == orderbook.VWAP {
		req.Algo = &exchange.SliceParams{
			Slices:     body.AlgoSlices,
			Interval:   msDuration(body.AlgoIntervalMS),
			LimitPrice: dec(body.Price),
		}
	}

	return req, true
}

func (s *Server) placeOrder(c *gin.Context) {
	userID := CurrentUserID(c)
	req, ok := s.toOrderRequest(c, userID)
	if !ok {
		return
	}

	result, err := s.Exchange.PlaceOrder(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(result.Order, result.Trades))
}

func (s *Server) testOrder(c *gin.Context) {
	userID := CurrentUserID(c)
	req, ok := s.toOrderRequest(c, userID)
	if !ok {
		return
	}

	order, err := s.Exchange.TestOrder(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(order, nil))
}

func (s *Server) cancelOrder(c *gin.Context) {
	userID := CurrentUserID(c)
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "symbol is required"})
		return
	}

	var order *orderbook.Order
	var err error
	if idStr := c.Query("orderId"); idStr != "" {
		id, perr := strconv.ParseUint(idStr, 10, 64)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "invalid orderId"})
			return
		}
		order, err = s.Exchange.CancelOrder(symbol, id, userID, orderbook.CancelAny)
	} else if clientID := c.Query("origClientOrderId"); clientID != "" {
		order, err = s.Exchange.CancelByClientOrderID(symbol, userID, clientID, orderbook.CancelAny)
	} else {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "orderId or origClientOrderId is required"})
		return
	}

	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(order, nil))
}

func (s *Server) getOrder(c *gin.Context) {
	userID := CurrentUserID(c)
	symbol := c.Query("symbol")
	idStr := c.Query("orderId")
	if symbol == "" || idStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "symbol and orderId are required"})
		return
	}
	id, perr := strconv.ParseUint(idStr, 10, 64)
	if perr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1102, "msg": "invalid orderId"})
		return
	}

	order, err := s.Exchange.GetOrder(symbol, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if order.UserID != userID {
		respondError(c, &exchange.OrderNotFoundError{OrderID: id})
		return
	}
	c.JSON(http.StatusOK, orderResponse(order, nil))
}

func (s *Server) openOrders(c *gin.Context) {
	userID := CurrentUserID(c)
	orders := s.Exchange.OpenOrders(userID)
	out := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o, nil))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) myTrades(c *gin.Context) {
	userID := CurrentUserID(c)
	symbol := c.Query("symbol")
	limit := 500
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records := s.Exchange.MyTrades(userID, symbol, limit)
	out := make([]gin.H, 0, len(records))
	for _, r := range records {
		out = append(out, gin.H{
			"tradeId": r.TradeID,
			"orderId": r.OrderID,
			"symbol":  r.Symbol,
			"price":   r.Price.String(),
			"qty":     r.Quantity.String(),
			"side":    r.Side.String(),
			"isMaker": r.IsMaker,
			"time":    r.Time,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) accountInfo(c *gin.Context) {
	userID := CurrentUserID(c)
	balances := s.Exchange.AccountSnapshot(userID)
	out := make([]gin.H, 0, len(balances))
	for asset, bal := range balances {
		out = append(out, gin.H{"asset": asset, "free": bal.Free.String(), "locked": bal.Locked.String()})
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "balances": out})
}

func orderResponse(o *orderbook.Order, trades []orderbook.Trade) gin.H {
	resp := gin.H{
		"symbol":        o.Symbol,
		"orderId":       o.ID,
		"clientOrderId": o.ClientOrderID,
		"side":          o.Side.String(),
		"type":          o.Type.String(),
		"timeInForce":   o.TimeInForce.String(),
		"price":         o.Price.String(),
		"origQty":       o.Quantity.String(),
		"executedQty":   o.FilledQuantity.String(),
		"status":        o.Status.String(),
		"transactTime":  o.Timestamp,
	}
	if o.RejectReason != "" {
		resp["rejectReason"] = o.RejectReason
	}
	if len(trades) > 0 {
		fills := make([]gin.H, 0, len(trades))
		for _, t := range trades {
			fills = append(fills, gin.H{
				"tradeId": t.ID,
				"price":   t.Price.String(),
				"qty":     t.Quantity.String(),
			})
		}
		resp["fills"] = fills
	}
	return resp
}
