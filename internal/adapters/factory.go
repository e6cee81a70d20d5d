// Package adapters maps stored broker connections to concrete broker.Adapter
// implementations.
package adapters

import (
	"errors"
	"fmt"
	"sync"

	"tradesync/internal/binance"
	"tradesync/internal/broker"
	"tradesync/internal/broker/alpaca"
	"tradesync/internal/config"
	"tradesync/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnsupportedBroker is returned for a connection kind with no adapter.
var ErrUnsupportedBroker = errors.New("unsupported broker")

// Kind is the closed set of brokers the system can talk to.
type Kind string

const (
	KindAlpacaPaper    Kind = "alpaca_paper"
	KindAlpacaLive     Kind = "alpaca_live"
	KindBinance        Kind = "binance"
	KindBinanceTestnet Kind = "binance_testnet"
)

// Kinds lists every supported broker kind.
var Kinds = []Kind{KindAlpacaPaper, KindAlpacaLive, KindBinance, KindBinanceTestnet}

// ParseKind validates a stored kind string.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBroker, s)
}

// Factory builds an adapter for a stored connection.
type Factory interface {
	New(conn *models.BrokerConnection) (broker.Adapter, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(conn *models.BrokerConnection) (broker.Adapter, error)

// New calls f.
func (f FactoryFunc) New(conn *models.BrokerConnection) (broker.Adapter, error) {
	return f(conn)
}

// BrokerFactory builds real adapters from broker configuration. Each kind
// gets one shared rate limiter so every connection to a venue draws from the
// same budget. Adapters are reused per connection until its kind or
// credentials change.
type BrokerFactory struct {
	cfg      config.Broker
	logger   *zap.Logger
	limiters map[Kind]*rate.Limiter

	mu    sync.Mutex
	built map[string]builtAdapter
}

type builtAdapter struct {
	key     string
	adapter broker.Adapter
}

// NewBrokerFactory creates a factory for the configured endpoints.
func NewBrokerFactory(cfg config.Broker, logger *zap.Logger) *BrokerFactory {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	limiters := make(map[Kind]*rate.Limiter, len(Kinds))
	for _, k := range Kinds {
		limiters[k] = rate.NewLimiter(limit, burst)
	}
	return &BrokerFactory{
		cfg:      cfg,
		logger:   logger,
		limiters: limiters,
		built:    make(map[string]builtAdapter),
	}
}

// New builds the adapter for conn. Unknown kinds fail with ErrUnsupportedBroker.
func (f *BrokerFactory) New(conn *models.BrokerConnection) (broker.Adapter, error) {
	kind, err := ParseKind(conn.Kind)
	if err != nil {
		return nil, err
	}
	if conn.APIKey == "" || conn.APISecret == "" {
		return nil, fmt.Errorf("connection %s has no credentials", conn.ID)
	}

	key := string(kind) + "\x00" + conn.APIKey + "\x00" + conn.APISecret
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.built[conn.ID]; ok && b.key == key {
		return b.adapter, nil
	}

	adapter, err := f.build(kind, conn)
	if err != nil {
		return nil, err
	}
	f.built[conn.ID] = builtAdapter{key: key, adapter: adapter}
	return adapter, nil
}

func (f *BrokerFactory) build(kind Kind, conn *models.BrokerConnection) (broker.Adapter, error) {
	switch kind {
	case KindAlpacaPaper, KindAlpacaLive:
		baseURL := f.cfg.AlpacaPaperURL
		if kind == KindAlpacaLive {
			baseURL = f.cfg.AlpacaLiveURL
		}
		return alpaca.New(alpaca.Options{
			ConnectionID: conn.ID,
			APIKey:       conn.APIKey,
			APISecret:    conn.APISecret,
			BaseURL:      baseURL,
			Limiter:      f.limiters[kind],
		}, f.logger), nil
	case KindBinance, KindBinanceTestnet:
		baseURL := f.cfg.BinanceURL
		if kind == KindBinanceTestnet {
			baseURL = f.cfg.BinanceTestnetURL
			f.logger.Debug("Using Binance Testnet", zap.String("connection_id", conn.ID))
		}
		client := binance.NewRestClient(baseURL, conn.APIKey, conn.APISecret, f.limiters[kind], f.logger)
		return binance.NewAdapter(conn.ID, client, f.logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedBroker, kind)
}
