// Package wsgateway is the multiplexed WebSocket edge: one connection can
// subscribe to any number of market/account streams named the way the
// core spec's §6 does ("<SYMBOL>@trade", "<SYMBOL>@depth",
// "<SYMBOL>@kline_<interval>", "<user_id>@account",
// "<user_id>@executionReport"), fed by the shared exchange facade's event
// bus rather than a redundant per-connection poll loop wherever an event
// already exists for it.
package wsgateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"exchange-core/internal/account"
	"exchange-core/internal/events"
	"exchange-core/internal/exchange"
	"exchange-core/internal/klines"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades HTTP connections into the streaming protocol, sharing
// one exchange facade across every connection.
type Gateway struct {
	facade   *exchange.Facade
	accounts *account.Manager
}

// New builds a gateway over facade/accounts. Register its Handle method
// on a gin route (conventionally GET /ws) to start accepting connections.
func New(facade *exchange.Facade, accounts *account.Manager) *Gateway {
	return &Gateway{facade: facade, accounts: accounts}
}

// clientMessage is the inbound JSON-RPC-ish envelope: {"id":1,"method":
// "SUBSCRIBE","params":["btcusdt@trade"]} or an "auth" method carrying an
// API key to unlock user-scoped streams on this connection.
type clientMessage struct {
	ID     int64    `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type serverResponse struct {
	ID     int64  `json:"id"`
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

type streamPush struct {
	Stream string `json:"stream"`
	Data   any    `json:"data"`
}

// connection is one upgraded WebSocket, with its own stream subscriptions
// and a single writer goroutine draining a fan-in channel so concurrent
// pushes never race on the socket.
type connection struct {
	gw     *Gateway
	conn   *websocket.Conn
	send   chan any
	userID string

	mu     sync.Mutex
	cancel map[string]func() // stream name -> teardown
}

// Handle upgrades the request and serves the connection until it closes.
func (gw *Gateway) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("wsgateway: upgrade failed: %v", err)
		return
	}

	conn := &connection{
		gw:     gw,
		conn:   ws,
		send:   make(chan any, 256),
		cancel: make(map[string]func()),
	}
	go conn.writeLoop()
	conn.readLoop()
}

func (c *connection) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *connection) readLoop() {
	defer c.teardownAll()
	defer close(c.send)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(msg.ID, nil, "malformed request")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *connection) dispatch(msg clientMessage) {
	switch strings.ToUpper(msg.Method) {
	case "AUTH":
		if len(msg.Params) != 1 {
			c.reply(msg.ID, nil, "AUTH requires exactly one param: the api key")
			return
		}
		userID := c.gw.accounts.Authenticate(msg.Params[0])
		if userID == "" {
			c.reply(msg.ID, nil, "invalid api key")
			return
		}
		c.userID = userID
		c.reply(msg.ID, "authenticated", "")
	case "SUBSCRIBE":
		for _, stream := range msg.Params {
			if err := c.subscribe(stream); err != nil {
				c.reply(msg.ID, nil, err.Error())
				return
			}
		}
		c.reply(msg.ID, nil, "")
	case "UNSUBSCRIBE":
		for _, stream := range msg.Params {
			c.unsubscribe(stream)
		}
		c.reply(msg.ID, nil, "")
	case "LIST_SUBSCRIPTIONS":
		c.mu.Lock()
		streams := make([]string, 0, len(c.cancel))
		for s := range c.cancel {
			streams = append(streams, s)
		}
		c.mu.Unlock()
		c.reply(msg.ID, streams, "")
	default:
		c.reply(msg.ID, nil, "unknown method")
	}
}

func (c *connection) reply(id int64, result any, errMsg string) {
	c.send <- serverResponse{ID: id, Result: result, Error: errMsg}
}

func (c *connection) push(stream string, data any) {
	select {
	case c.send <- streamPush{Stream: stream, Data: data}:
	default:
		// slow consumer: drop rather than block the publishing goroutine
	}
}

func (c *connection) teardownAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.cancel {
		cancel()
	}
	c.cancel = nil
}

func (c *connection) unsubscribe(stream string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancel[stream]; ok {
		cancel()
		delete(c.cancel, stream)
	}
}

// subscribe parses stream's name and wires the matching push source. Market
// streams key off "<symbol>@<kind>"; user streams key off "<user_id>@<kind>"
// and require a prior successful AUTH as that same user.
func (c *connection) subscribe(stream string) error {
	symbol, kind, ok := splitStream(stream)
	if !ok {
		return errInvalidStream(stream)
	}

	switch {
	case kind == "trade":
		return c.subscribeTrades(stream, symbol)
	case kind == "depth":
		return c.subscribeDepth(stream, symbol)
	case strings.HasPrefix(kind, "kline_"):
		interval := klines.Interval(strings.TrimPrefix(kind, "kline_"))
		if interval.Millis() == 0 {
			return errInvalidStream(stream)
		}
		return c.subscribeKline(stream, symbol, interval)
	case kind == "account":
		return c.subscribeAccount(stream, symbol)
	case kind == "executionReport":
		return c.subscribeExecutionReports(stream, symbol)
	default:
		return errInvalidStream(stream)
	}
}

func splitStream(stream string) (prefix, kind string, ok bool) {
	idx := strings.LastIndex(stream, "@")
	if idx <= 0 || idx == len(stream)-1 {
		return "", "", false
	}
	return stream[:idx], stream[idx+1:], true
}

type invalidStreamError string

func (e invalidStreamError) Error() string { return "invalid stream: " + string(e) }
func errInvalidStream(stream string) error { return invalidStreamError(stream) }

func (c *connection) subscribeTrades(stream, symbol string) error {
	id := c.gw.facade.Bus().Subscribe(events.TypeFill, func(ev events.Event) {
		fill, ok := ev.Data.(events.FillEvent)
		if !ok || !strings.EqualFold(fill.Symbol, symbol) {
			return
		}
		c.push(stream, fill)
	}, events.PriorityNormal, true)
	c.addSubscription(stream, func() { c.gw.facade.Bus().Unsubscribe(id) })
	return nil
}

func (c *connection) subscribeAccount(stream, userID string) error {
	if c.userID == "" || c.userID != userID {
		return invalidStreamError(stream + ": AUTH required as " + userID)
	}
	id := c.gw.facade.Bus().Subscribe(events.TypeAccount, func(ev events.Event) {
		acct, ok := ev.Data.(events.AccountEvent)
		if !ok || acct.UserID != userID {
			return
		}
		c.push(stream, acct)
	}, events.PriorityNormal, true)
	c.addSubscription(stream, func() { c.gw.facade.Bus().Unsubscribe(id) })
	return nil
}

func (c *connection) subscribeExecutionReports(stream, userID string) error {
	if c.userID == "" || c.userID != userID {
		return invalidStreamError(stream + ": AUTH required as " + userID)
	}
	id := c.gw.facade.Bus().Subscribe(events.TypeOrder, func(ev events.Event) {
		order, ok := ev.Data.(events.OrderEvent)
		if !ok || order.UserID != userID {
			return
		}
		c.push(stream, order)
	}, events.PriorityNormal, true)
	c.addSubscription(stream, func() { c.gw.facade.Bus().Unsubscribe(id) })
	return nil
}

// subscribeDepth polls the facade's book on a short ticker rather than
// hooking the matching engine directly, since depth has no dedicated
// event type and changes on every admitted order, not just trades.
func (c *connection) subscribeDepth(stream, symbol string) error {
	if _, _, err := c.gw.facade.Depth(symbol, 1); err != nil {
		return err
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				bids, asks, err := c.gw.facade.Depth(symbol, 20)
				if err != nil {
					continue
				}
				c.push(stream, depthPayload(bids, asks))
			}
		}
	}()
	c.addSubscription(stream, func() { close(stop) })
	return nil
}

func (c *connection) subscribeKline(stream, symbol string, interval klines.Interval) error {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				now := c.gw.facade.Clock().NowMS()
				bucket := now - now%interval.Millis()
				candles := c.gw.facade.Klines().Klines(symbol, interval, bucket, now, 1)
				if len(candles) == 0 {
					continue
				}
				c.push(stream, candles[0])
			}
		}
	}()
	c.addSubscription(stream, func() { close(stop) })
	return nil
}

func (c *connection) addSubscription(stream string, cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.cancel[stream]; ok {
		old()
	}
	c.cancel[stream] = cancel
}
