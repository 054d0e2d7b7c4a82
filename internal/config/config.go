// Package config loads the engine's configuration from the environment,
// following the same .env-then-os.Getenv layering the teacher codebase
// used for its narrower Binance config.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TimeWindow is a daily HH:MM-HH:MM block used for the midday "lunch" window.
// Strategy compares it with the Now it is given, which the engine takes from
// the process's local clock rather than exchange time.
type TimeWindow struct {
	Start string
	End   string
}

// Config holds every tunable the operator surface (spec §6) recognizes.
type Config struct {
	// Broker credentials (Alpaca-shaped).
	AlpacaKeyID     string
	AlpacaSecretKey string
	AlpacaBaseURL   string
	AlpacaDataURL   string

	// Market-data vendor dual-key rotation settings (daily bars fallback);
	// loaded here, but no package reads them.
	MarketDataKeyA string
	MarketDataKeyB string
	KeyRotateEvery int

	// Sentiment feed.
	SentimentURL string

	// AI validator escalation endpoint.
	AIValidatorURL string

	// Operator alert channels.
	TelegramBotToken string
	TelegramChatID   int64
	OperatorBearer   string
	FirebaseCredFile string

	// Journal.
	FirestoreProjectID string
	FirestoreEnabled   bool

	// Watchlist / position limits.
	Watchlist    []string
	MaxPositions int

	// Risk.
	RiskPerTradePct   float64
	CircuitBreakerPct float64
	MaxPositionPct    float64
	MaxDailyTrades    int
	MaxSymbolTrades   int
	CooldownLosses    int
	CooldownDuration  time.Duration

	// Strategy / indicators.
	EMAShort  int
	EMALong   int
	EMATrend  int
	RSIPeriod int

	// Execution.
	StopATRMult        float64
	TargetATRMult      float64
	MinRewardRisk      float64
	BracketOrdersEnabled bool
	TrailingStopsEnabled bool
	PartialProfitsEnabled bool
	PartialPct           float64
	TrailActivateR        float64
	LongOnlyMode          bool
	FillTimeoutSeconds    int
	MaxSlippagePct        float64
	SlippageBufferPct     float64

	// Filters.
	EnableTimeOfDayFilter     bool
	LunchWindow               TimeWindow
	Enable200EMAFilter        bool
	EnableMultiTimeframeFilter bool

	// AI validator.
	EnableAIValidation bool
	AIValidationTimeout time.Duration

	// Scheduler cadences.
	MarketDataInterval     time.Duration
	StrategyInterval       time.Duration
	PositionMonitorInterval time.Duration
	MetricsInterval        time.Duration
	ScannerInterval        time.Duration
	ProfitProtectionInterval time.Duration
	EndOfDayCutoff         string // "15:58"
}

// Load reads .env (if present) then the process environment, applying the
// same defaults-on-missing-value behavior as the teacher's LoadConfig.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found. Relying on system environment variables.")
	}

	c := &Config{
		AlpacaKeyID:     os.Getenv("ALPACA_API_KEY_ID"),
		AlpacaSecretKey: os.Getenv("ALPACA_API_SECRET_KEY"),
		AlpacaBaseURL:   getStr("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		AlpacaDataURL:   getStr("ALPACA_DATA_URL", "https://data.alpaca.markets"),

		MarketDataKeyA: os.Getenv("MARKETDATA_KEY_A"),
		MarketDataKeyB: os.Getenv("MARKETDATA_KEY_B"),
		KeyRotateEvery: getInt("MARKETDATA_KEY_ROTATE_EVERY", 500),

		SentimentURL: getStr("SENTIMENT_FEED_URL", ""),

		AIValidatorURL: getStr("AI_VALIDATOR_URL", ""),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   int64(getInt("TELEGRAM_CHAT_ID", 0)),
		OperatorBearer:   os.Getenv("OPERATOR_BEARER_TOKEN"),
		FirebaseCredFile: getStr("FIREBASE_CREDENTIALS_FILE", "serviceAccountKey.json"),

		FirestoreProjectID: os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreEnabled:   getBool("FIRESTORE_JOURNAL_ENABLED", false),

		Watchlist:    getList("WATCHLIST", []string{"AAPL", "MSFT", "NVDA", "AMZN", "TSLA"}),
		MaxPositions: getInt("MAX_POSITIONS", 20),

		RiskPerTradePct:   getFloat("RISK_PER_TRADE_PCT", 0.01),
		CircuitBreakerPct: getFloat("CIRCUIT_BREAKER_PCT", 0.05),
		MaxPositionPct:    getFloat("MAX_POSITION_PCT", 0.15),
		MaxDailyTrades:    getInt("MAX_DAILY_TRADES", 30),
		MaxSymbolTrades:   getInt("MAX_SYMBOL_TRADES_PER_DAY", 3),
		CooldownLosses:    getInt("COOLDOWN_LOSSES", 3),
		CooldownDuration:  time.Duration(getInt("COOLDOWN_DURATION_MIN", 24*60)) * time.Minute,

		EMAShort:  getInt("EMA_SHORT", 9),
		EMALong:   getInt("EMA_LONG", 21),
		EMATrend:  getInt("EMA_TREND", 200),
		RSIPeriod: getInt("RSI_PERIOD", 14),

		StopATRMult:            getFloat("STOP_ATR_MULT", 1.5),
		TargetATRMult:          getFloat("TARGET_ATR_MULT", 3.0),
		MinRewardRisk:          getFloat("MIN_REWARD_RISK", 2.0),
		BracketOrdersEnabled:   getBool("BRACKET_ORDERS_ENABLED", true),
		TrailingStopsEnabled:   getBool("TRAILING_STOPS_ENABLED", true),
		PartialProfitsEnabled:  getBool("PARTIAL_PROFITS_ENABLED", true),
		PartialPct:             getFloat("PARTIAL_PCT", 0.25),
		TrailActivateR:         getFloat("TRAIL_ACTIVATE_R", 2.0),
		LongOnlyMode:           getBool("LONG_ONLY_MODE", false),
		FillTimeoutSeconds:     getInt("FILL_TIMEOUT_SECONDS", 60),
		MaxSlippagePct:         getFloat("MAX_SLIPPAGE_PCT", 0.003),
		SlippageBufferPct:      getFloat("SLIPPAGE_BUFFER_PCT", 0.002),

		EnableTimeOfDayFilter: getBool("ENABLE_TIME_OF_DAY_FILTER", true),
		LunchWindow:           TimeWindow{Start: getStr("LUNCH_WINDOW_START", "12:00"), End: getStr("LUNCH_WINDOW_END", "13:00")},
		Enable200EMAFilter:    getBool("ENABLE_200_EMA_FILTER", true),
		EnableMultiTimeframeFilter: getBool("ENABLE_MULTI_TIMEFRAME_FILTER", true),

		EnableAIValidation:  getBool("ENABLE_AI_VALIDATION", false),
		AIValidationTimeout: time.Duration(getInt("AI_VALIDATION_TIMEOUT_MS", 3500)) * time.Millisecond,

		MarketDataInterval:      time.Duration(getInt("MARKET_DATA_INTERVAL_SEC", 60)) * time.Second,
		StrategyInterval:        time.Duration(getInt("STRATEGY_INTERVAL_SEC", 60)) * time.Second,
		PositionMonitorInterval: time.Duration(getInt("POSITION_MONITOR_INTERVAL_SEC", 10)) * time.Second,
		MetricsInterval:         time.Duration(getInt("METRICS_INTERVAL_SEC", 300)) * time.Second,
		ScannerInterval:         time.Duration(getInt("SCANNER_INTERVAL_SEC", 3600)) * time.Second,
		ProfitProtectionInterval: time.Duration(getInt("PROFIT_PROTECTION_INTERVAL_MS", 1000)) * time.Millisecond,
		EndOfDayCutoff:          getStr("END_OF_DAY_CUTOFF", "15:58"),
	}

	if c.AlpacaKeyID == "" || c.AlpacaSecretKey == "" {
		log.Println("⚠️  CRITICAL: Alpaca credentials missing!")
	}

	return c
}

func getStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
