package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/actor"
	"github.com/oddsmith/sportsbook/internal/bet"
	"github.com/oddsmith/sportsbook/internal/betindex"
	"github.com/oddsmith/sportsbook/internal/clock"
	"github.com/oddsmith/sportsbook/internal/eventbus"
	"github.com/oddsmith/sportsbook/internal/guard"
	"github.com/oddsmith/sportsbook/internal/handler"
	"github.com/oddsmith/sportsbook/internal/infra"
	"github.com/oddsmith/sportsbook/internal/odds"
	"github.com/oddsmith/sportsbook/internal/sportevent"
	"github.com/oddsmith/sportsbook/internal/store"
	"github.com/oddsmith/sportsbook/internal/wallet"
)

// RouterDeps carries the infrastructure the application is wired from.
type RouterDeps struct {
	Cfg    *infra.Config
	Logger *slog.Logger
	Events store.EventStore
	States store.StateStore
	Bus    eventbus.Publisher
	Clock  clock.Clock
	// Ping checks backing-store health; nil when running on memory stores.
	Ping func(ctx context.Context) error
}

// App bundles the HTTP router with the actor system behind it so the caller
// can drain mailboxes on shutdown.
type App struct {
	Router *chi.Mux
	System *actor.System
}

// NewApp wires all services and handlers into a router.
func NewApp(deps RouterDeps) (*App, error) {
	cfg := deps.Cfg

	volCfg, err := volatilityConfig(cfg)
	if err != nil {
		return nil, err
	}
	betCfg, err := betConfig(cfg)
	if err != nil {
		return nil, err
	}

	sys := actor.NewSystem(deps.Logger)

	walletSvc := wallet.NewService(sys, deps.States, deps.Bus, deps.Clock, deps.Logger)
	oddsSvc := odds.NewService(sys, deps.States, deps.Bus, deps.Clock, volCfg, deps.Logger)
	indexSvc := betindex.NewService(sys, deps.States, deps.Logger)
	eventSvc := sportevent.NewService(sys, deps.States, deps.Bus, deps.Clock, deps.Logger)
	betSvc := bet.NewService(sys, deps.Events, deps.Bus, deps.Clock, walletSvc, oddsSvc, indexSvc, eventSvc, betCfg, deps.Logger)
	indexSvc.SetReader(betSvc)
	eventSvc.SetSettler(betSvc)

	limiter := guard.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow, deps.Clock)
	keys := guard.NewIdempotencyKeys()

	walletH := handler.NewWalletHandler(walletSvc)
	betH := handler.NewBetHandler(betSvc, indexSvc, keys)
	oddsH := handler.NewOddsHandler(oddsSvc)
	eventH := handler.NewSportEventHandler(eventSvc)
	healthH := handler.NewHealthHandler(deps.Ping)

	r := chi.NewRouter()
	r.Use(handler.Recovery(deps.Logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(deps.Logger))
	r.Use(handler.CORS(cfg.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)

	r.Get("/health/live", healthH.Live)
	r.Get("/health/ready", healthH.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Use(handler.RateLimit(limiter))

		r.Route("/bets", func(r chi.Router) {
			r.Post("/", betH.PlaceBet)

			r.Route("/users/{userId}", func(r chi.Router) {
				r.Get("/", betH.GetUserBets)
				r.Get("/active", betH.GetActiveBets)
				r.Get("/history", betH.GetUserBetHistory)
			})

			r.Get("/{betId}", betH.GetBet)
			r.Get("/{betId}/events", betH.GetBetEvents)
			r.Get("/{betId}/history", betH.GetBetHistory)
			r.Post("/{betId}/void", betH.VoidBet)
			r.Post("/{betId}/cashout", betH.CashOut)
		})

		r.Route("/wallet/{userId}", func(r chi.Router) {
			r.Post("/deposit", walletH.Deposit)
			r.Post("/withdraw", walletH.Withdraw)
			r.Get("/balance", walletH.GetBalance)
			r.Get("/transactions", walletH.GetTransactions)
			r.Get("/ledger", walletH.GetLedger)
		})

		r.Route("/odds/{marketId}", func(r chi.Router) {
			r.Post("/", oddsH.InitializeMarket)
			r.Put("/", oddsH.UpdateOdds)
			r.Get("/", oddsH.GetOdds)
			r.Get("/history", oddsH.GetOddsHistory)
			r.Get("/volatility", oddsH.GetVolatility)
			r.Get("/locks", oddsH.GetLockedSelections)
			r.Post("/suspend", oddsH.SuspendOdds)
			r.Post("/resume", oddsH.ResumeOdds)
			r.Post("/lock", oddsH.LockOdds)
			r.Post("/unlock", oddsH.UnlockOdds)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventH.CreateEvent)
			r.Get("/{eventId}", eventH.GetEvent)
			r.Put("/{eventId}", eventH.UpdateEvent)
			r.Post("/{eventId}/start", eventH.StartEvent)
			r.Post("/{eventId}/suspend", eventH.SuspendEvent)
			r.Post("/{eventId}/complete", eventH.CompleteEvent)
			r.Post("/{eventId}/cancel", eventH.CancelEvent)

			r.Route("/{eventId}/markets", func(r chi.Router) {
				r.Post("/", eventH.AddMarket)
				r.Get("/", eventH.ListMarkets)
				r.Get("/{marketId}", eventH.GetMarket)
				r.Put("/{marketId}/status", eventH.UpdateMarketStatus)
				r.Post("/{marketId}/result", eventH.SetMarketResult)
			})
		})
	})

	return &App{Router: r, System: sys}, nil
}

func volatilityConfig(cfg *infra.Config) (odds.VolatilityConfig, error) {
	medium, err := decimal.NewFromString(cfg.VolatilityMedium)
	if err != nil {
		return odds.VolatilityConfig{}, fmt.Errorf("parse VOLATILITY_MEDIUM: %w", err)
	}
	high, err := decimal.NewFromString(cfg.VolatilityHigh)
	if err != nil {
		return odds.VolatilityConfig{}, fmt.Errorf("parse VOLATILITY_HIGH: %w", err)
	}
	extreme, err := decimal.NewFromString(cfg.VolatilityExtreme)
	if err != nil {
		return odds.VolatilityConfig{}, fmt.Errorf("parse VOLATILITY_EXTREME: %w", err)
	}
	return odds.VolatilityConfig{
		Window:  cfg.VolatilityWindow,
		Medium:  medium,
		High:    high,
		Extreme: extreme,
	}, nil
}

func betConfig(cfg *infra.Config) (bet.Config, error) {
	margin, err := decimal.NewFromString(cfg.CashoutMargin)
	if err != nil {
		return bet.Config{}, fmt.Errorf("parse CASHOUT_MARGIN: %w", err)
	}
	minimum, err := decimal.NewFromString(cfg.CashoutMinimum)
	if err != nil {
		return bet.Config{}, fmt.Errorf("parse CASHOUT_MINIMUM: %w", err)
	}
	return bet.Config{CashoutMargin: margin, CashoutMinimum: minimum}, nil
}
