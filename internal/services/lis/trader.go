package lis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"lis-trader/internal/models"
	"lis-trader/internal/services"
)

// TradeStore is the persistence the trader needs. Implemented by
// database.Store and database.MemoryStore.
type TradeStore interface {
	InsertPurchase(p models.Purchase) error
	InsertTrade(t models.Trade) error
	GetBalance(startUSD float64) (float64, error)
	SetBalance(usd float64) error
}

// Trader executes buys against the marketplace, or simulates them against
// the paper balance when not in live mode. Every attempt leaves a Purchase
// audit row; successful buys additionally book a Trade and start tracking
// the position for exit signals.
type Trader struct {
	client   *Client // nil outside live mode
	store    TradeStore
	watcher  *services.SignalWatcher
	feeRate  float64
	startUSD float64
	live     bool
	partner  string
	token    string
	clock    services.Clock
}

func NewTrader(client *Client, store TradeStore, watcher *services.SignalWatcher, feeRate, startUSD float64, live bool, partner, token string, clock services.Clock) *Trader {
	if clock == nil {
		clock = services.SystemClock()
	}
	return &Trader{
		client:   client,
		store:    store,
		watcher:  watcher,
		feeRate:  feeRate,
		startUSD: startUSD,
		live:     live,
		partner:  partner,
		token:    token,
		clock:    clock,
	}
}

// BuyResult reports one executed (or simulated) buy.
type BuyResult struct {
	PurchaseID string  `json:"purchase_id"`
	SkinName   string  `json:"skin_name"`
	PriceUSD   float64 `json:"price_usd"`
	FeeUSD     float64 `json:"fee_usd"`
	Mode       string  `json:"mode"`
	BalanceUSD float64 `json:"balance_usd"`
}

// Balance returns the tradeable balance: the marketplace account in live
// mode, the paper balance otherwise.
func (t *Trader) Balance(ctx context.Context) (float64, error) {
	if t.live && t.client != nil {
		return t.client.GetUserBalance(ctx)
	}
	return t.store.GetBalance(t.startUSD)
}

// Buy purchases the given offer.
func (t *Trader) Buy(ctx context.Context, offer models.Offer) (*BuyResult, error) {
	if t.live && t.client != nil {
		return t.buyLive(ctx, offer)
	}
	return t.buyPaper(offer)
}

func (t *Trader) buyPaper(offer models.Offer) (*BuyResult, error) {
	now := t.clock.Now()
	fee := offer.Price * t.feeRate
	cost := offer.Price + fee

	bal, err := t.store.GetBalance(t.startUSD)
	if err != nil {
		return nil, err
	}
	if bal < cost {
		return nil, fmt.Errorf("insufficient balance: have %.2f, need %.2f", bal, cost)
	}
	if err := t.store.SetBalance(bal - cost); err != nil {
		return nil, err
	}

	purchaseID := "PAPER-" + strconv.FormatInt(now.UnixMilli(), 10)
	customID := uuid.NewString()
	reqJSON, _ := json.Marshal(map[string]any{
		"skin_id": offer.SkinID, "skin_name": offer.SkinName, "price": offer.Price,
	})
	t.record(models.Purchase{
		PurchaseID:  purchaseID,
		CustomID:    customID,
		RequestJSON: string(reqJSON),
		CreatedAt:   now,
	}, models.Trade{
		Side:     "BUY",
		SkinID:   strconv.FormatInt(offer.SkinID, 10),
		SkinName: offer.SkinName,
		Qty:      1,
		Price:    offer.Price,
		Fee:      fee,
		Mode:     "PAPER",
		Ts:       now,
	}, offer, now)

	slog.Info("paper buy",
		"skin", offer.SkinName, "price", offer.Price, "fee", fee, "balance", bal-cost)
	return &BuyResult{
		PurchaseID: purchaseID,
		SkinName:   offer.SkinName,
		PriceUSD:   offer.Price,
		FeeUSD:     fee,
		Mode:       "PAPER",
		BalanceUSD: bal - cost,
	}, nil
}

func (t *Trader) buyLive(ctx context.Context, offer models.Offer) (*BuyResult, error) {
	now := t.clock.Now()
	customID := uuid.NewString()
	req := BuyRequest{
		IDs:             []int64{offer.SkinID},
		Partner:         t.partner,
		Token:           t.token,
		CustomID:        customID,
		MaxPrice:        offer.Price,
		SkipUnavailable: true,
	}
	reqJSON, _ := json.Marshal(req)

	resp, err := t.client.BuyForUser(ctx, req)
	if err != nil {
		row := models.Purchase{
			CustomID:    customID,
			RequestJSON: string(reqJSON),
			Error:       err.Error(),
			CreatedAt:   now,
		}
		if resp != nil {
			row.ResponseJSON = resp.Raw
		}
		if serr := t.store.InsertPurchase(row); serr != nil {
			slog.Warn("purchase audit write failed", "err", serr)
		}
		return nil, err
	}

	purchaseID := strconv.FormatInt(resp.Data.PurchaseID, 10)
	fee := offer.Price * t.feeRate
	t.record(models.Purchase{
		PurchaseID:   purchaseID,
		SteamID:      resp.Data.SteamID,
		CustomID:     customID,
		RequestJSON:  string(reqJSON),
		ResponseJSON: resp.Raw,
		CreatedAt:    now,
	}, models.Trade{
		Side:     "BUY",
		SkinID:   strconv.FormatInt(offer.SkinID, 10),
		SkinName: offer.SkinName,
		Qty:      1,
		Price:    offer.Price,
		Fee:      fee,
		Mode:     "LIVE",
		Ts:       now,
	}, offer, now)

	slog.Info("live buy", "skin", offer.SkinName, "price", offer.Price, "purchase_id", purchaseID)
	return &BuyResult{
		PurchaseID: purchaseID,
		SkinName:   offer.SkinName,
		PriceUSD:   offer.Price,
		FeeUSD:     fee,
		Mode:       "LIVE",
	}, nil
}

func (t *Trader) record(p models.Purchase, tr models.Trade, offer models.Offer, now time.Time) {
	if err := t.store.InsertPurchase(p); err != nil {
		slog.Warn("purchase audit write failed", "err", err)
	}
	if err := t.store.InsertTrade(tr); err != nil {
		slog.Warn("trade write failed", "err", err)
	}
	if t.watcher != nil {
		t.watcher.Track(services.Position{
			SkinID:   offer.SkinID,
			SkinName: offer.SkinName,
			EntryUSD: offer.Price,
			BoughtAt: now,
			UnlockAt: offer.UnlockAt,
		})
	}
}
