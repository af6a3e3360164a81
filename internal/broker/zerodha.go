// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	domainerrors "shortvol-trader/internal/errors"
	"shortvol-trader/internal/models"
	"shortvol-trader/internal/performance"
)

// ZerodhaBroker implements the Broker interface for Zerodha Kite Connect.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	accessToken   string
	tokenPath     string
	authenticated bool
	instruments   map[string]models.Instrument
	limiter       *performance.RateLimiter
	mu            sync.RWMutex
}

// ZerodhaConfig holds configuration for the Zerodha broker.
type ZerodhaConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	TokenPath string
}

// NewZerodhaBroker creates a new Zerodha broker instance.
// It automatically loads any saved session from disk.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	client := kiteconnect.New(cfg.APIKey)

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "shortvol-trader", "session.json")
	}

	zb := &ZerodhaBroker{
		client:      client,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		userID:      cfg.UserID,
		tokenPath:   tokenPath,
		instruments: make(map[string]models.Instrument),
		// Kite Connect allows 3 req/s on the quote endpoints.
		limiter: performance.NewRateLimiter(3, 3),
	}

	_ = zb.loadSession()

	return zb
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// GetLoginURL returns the Zerodha login URL for the OAuth flow. The
// interactive browser flow itself lives outside this process.
func (z *ZerodhaBroker) GetLoginURL() string {
	return z.client.GetLoginURL()
}

// CompleteLogin exchanges a request token for an access token and
// persists the resulting session.
func (z *ZerodhaBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return fmt.Errorf("failed to generate session: %w", err)
	}

	z.SetAccessToken(session.AccessToken)

	if err := z.saveSession(session.AccessToken); err != nil {
		// Session is valid even if persistence fails.
		fmt.Printf("warning: failed to persist session: %v\n", err)
	}

	return nil
}

// SetAccessToken applies a session token directly, e.g. one produced by an
// external login helper.
func (z *ZerodhaBroker) SetAccessToken(token string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.accessToken = token
	z.authenticated = token != ""
	z.client.SetAccessToken(token)
}

// Logout drops the in-memory session and removes the persisted one.
func (z *ZerodhaBroker) Logout() error {
	z.mu.Lock()
	z.accessToken = ""
	z.authenticated = false
	tokenPath := z.tokenPath
	z.mu.Unlock()

	if err := os.Remove(tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// AccessToken returns the current session token, empty when logged out.
func (z *ZerodhaBroker) AccessToken() string {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.accessToken
}

// IsAuthenticated returns whether the broker holds a session token.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

func (z *ZerodhaBroker) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Zerodha tokens expire at 6 AM IST the next day.
	if time.Now().After(session.ExpiresAt) {
		return fmt.Errorf("session expired")
	}

	z.SetAccessToken(session.AccessToken)
	return nil
}

func (z *ZerodhaBroker) saveSession(accessToken string) error {
	dir := filepath.Dir(z.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	loc, _ := time.LoadLocation("Asia/Kolkata")
	now := time.Now().In(loc)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, loc)

	session := sessionData{
		AccessToken: accessToken,
		UserID:      z.userID,
		ExpiresAt:   expiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return os.WriteFile(z.tokenPath, data, 0600)
}

// GetQuotes fetches real-time quotes for a set of symbols. Symbols are the
// exchange-qualified form, e.g. "NFO:NIFTY28NOV2422000CE".
func (z *ZerodhaBroker) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	if !z.IsAuthenticated() {
		return nil, domainerrors.ErrNotAuthenticated
	}
	if err := z.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	quotes, err := z.client.GetQuote(symbols...)
	if err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	result := make(map[string]models.Quote, len(quotes))
	for sym, q := range quotes {
		result[sym] = models.Quote{
			Symbol:   sym,
			LTP:      q.LastPrice,
			OI:       int64(q.OI),
			Volume:   int64(q.Volume),
			BidPrice: bestBuyPrice(q),
			AskPrice: bestSellPrice(q),
		}
	}

	return result, nil
}

func bestBuyPrice(q kiteconnect.Quote) float64 {
	if len(q.Depth.Buy) > 0 {
		return q.Depth.Buy[0].Price
	}
	return 0
}

func bestSellPrice(q kiteconnect.Quote) float64 {
	if len(q.Depth.Sell) > 0 {
		return q.Depth.Sell[0].Price
	}
	return 0
}

// GetInstruments fetches the instrument master for an exchange and caches
// the result for token lookups.
func (z *ZerodhaBroker) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	if !z.IsAuthenticated() {
		return nil, domainerrors.ErrNotAuthenticated
	}
	if err := z.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	instruments, err := z.client.GetInstrumentsByExchange(string(exchange))
	if err != nil {
		return nil, fmt.Errorf("failed to get instruments: %w", err)
	}

	result := make([]models.Instrument, len(instruments))
	z.mu.Lock()
	for i, inst := range instruments {
		result[i] = models.Instrument{
			Token:     uint32(inst.InstrumentToken),
			Symbol:    inst.Tradingsymbol,
			Name:      inst.Name,
			Exchange:  models.Exchange(inst.Exchange),
			Segment:   inst.Segment,
			LotSize:   int(inst.LotSize),
			TickSize:  inst.TickSize,
			Expiry:    inst.Expiry.Time,
			Strike:    inst.StrikePrice,
			InstrType: inst.InstrumentType,
		}
		key := fmt.Sprintf("%s:%s", inst.Exchange, inst.Tradingsymbol)
		z.instruments[key] = result[i]
	}
	z.mu.Unlock()

	return result, nil
}

// LookupToken resolves a trading symbol to its streaming instrument token
// by scanning the instrument master. Results are cached; the full fetch
// happens once per process, not per tick.
func (z *ZerodhaBroker) LookupToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error) {
	key := fmt.Sprintf("%s:%s", exchange, symbol)

	z.mu.RLock()
	inst, ok := z.instruments[key]
	z.mu.RUnlock()

	if ok {
		return inst.Token, nil
	}

	if _, err := z.GetInstruments(ctx, exchange); err != nil {
		return 0, err
	}

	z.mu.RLock()
	inst, ok = z.instruments[key]
	z.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("%w: %s", domainerrors.ErrSymbolNotFound, symbol)
	}

	return inst.Token, nil
}

// PlaceOrder places a new regular order and returns the broker order id.
func (z *ZerodhaBroker) PlaceOrder(ctx context.Context, order *models.Order) (string, error) {
	if !z.IsAuthenticated() {
		return "", domainerrors.ErrNotAuthenticated
	}

	params := kiteconnect.OrderParams{
		Exchange:        string(order.Exchange),
		Tradingsymbol:   order.Symbol,
		TransactionType: string(order.Side),
		OrderType:       string(order.Type),
		Product:         string(order.Product),
		Quantity:        order.Quantity,
		Price:           order.Price,
		Validity:        order.Validity,
		Tag:             order.Tag,
	}

	if params.Validity == "" {
		params.Validity = "DAY"
	}
	if params.Product == "" {
		params.Product = string(models.ProductMIS)
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return "", fmt.Errorf("failed to place order: %w", err)
	}

	return resp.OrderID, nil
}

// CancelOrder cancels an existing order.
func (z *ZerodhaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if !z.IsAuthenticated() {
		return domainerrors.ErrNotAuthenticated
	}

	_, err := z.client.CancelOrder(kiteconnect.VarietyRegular, orderID, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	return nil
}

// GetOrders fetches all orders for the day with their statuses.
func (z *ZerodhaBroker) GetOrders(ctx context.Context) ([]models.Order, error) {
	if !z.IsAuthenticated() {
		return nil, domainerrors.ErrNotAuthenticated
	}

	orders, err := z.client.GetOrders()
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}

	result := make([]models.Order, len(orders))
	for i, o := range orders {
		result[i] = models.Order{
			ID:           o.OrderID,
			Symbol:       o.TradingSymbol,
			Exchange:     models.Exchange(o.Exchange),
			Side:         models.OrderSide(o.TransactionType),
			Type:         models.OrderType(o.OrderType),
			Product:      models.ProductType(o.Product),
			Quantity:     int(o.Quantity),
			Price:        o.Price,
			Validity:     o.Validity,
			Tag:          o.Tag,
			Status:       o.Status,
			FilledQty:    int(o.FilledQuantity),
			AveragePrice: o.AveragePrice,
			PlacedAt:     o.OrderTimestamp.Time,
		}
	}

	return result, nil
}

// Ensure ZerodhaBroker implements Broker interface
var _ Broker = (*ZerodhaBroker)(nil)
