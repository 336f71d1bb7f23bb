package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	xutil "TickPilot/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
		// Collect enables aggregated error-log publishing to kafka.topics.logs.
		Collect         bool          `yaml:"collect"`
		CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
		CollectCount    int           `yaml:"collect_count" default:"100"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
		BasePath        string        `yaml:"base_path" default:"/api"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		CORSMaxAge      time.Duration `yaml:"cors_max_age" default:"10m"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Engine struct {
		Symbols      []string      `yaml:"symbols" validate:"required,min=1,dive,required"`
		TickInterval time.Duration `yaml:"tick_interval" default:"60s" validate:"gte=1000000000"`
		TickTimeout  time.Duration `yaml:"tick_timeout" default:"30s"`
		HistorySize  int           `yaml:"history_size" default:"300" validate:"gte=201"`
		StateKey     string        `yaml:"state_key" default:"engine"`
		RegimeKey    string        `yaml:"regime_key" default:"regime"`
		LockTTL      time.Duration `yaml:"lock_ttl" default:"2m"`
	} `yaml:"engine"`
	Session struct {
		Timezone  string `yaml:"timezone" default:"Asia/Kolkata"`
		Open      string `yaml:"open" default:"09:15"`
		SquareOff string `yaml:"square_off" default:"15:15"`
		Close     string `yaml:"close" default:"15:30"`
	} `yaml:"session"`
	// Sources lists quote sources in fallback order.
	Sources []string `yaml:"sources" validate:"dive,oneof=broker yahoo finnhub finnhub_stream clickhouse"`
	Broker  struct {
		Type     string  `yaml:"type" default:"paper" validate:"oneof=paper alpaca"`
		Slippage float64 `yaml:"slippage" default:"0.0005" validate:"gte=0,lt=0.1"`
	} `yaml:"broker"`
	Alpaca struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		BaseURL   string `yaml:"base_url" default:"https://paper-api.alpaca.markets"`
		Feed      string `yaml:"feed" default:"iex"`
	} `yaml:"alpaca"`
	Finnhub struct {
		APIKey         string        `yaml:"api_key"`
		RESTURL        string        `yaml:"rest_url" default:"https://finnhub.io/api/v1"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		Timeout        time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"finnhub"`
	Yahoo struct {
		// Suffix is appended to symbols, for example ".NS".
		Suffix string `yaml:"suffix"`
	} `yaml:"yahoo"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"tickpilot"`
		TTL      time.Duration `yaml:"ttl" default:"168h"`

		// Pool settings; zero keeps the client defaults.
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		PoolTimeout  time.Duration `yaml:"pool_timeout"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Ticks   string `yaml:"ticks" default:"tickpilot.ticks"`
			Trades  string `yaml:"trades" default:"tickpilot.trades"`
			Logs    string `yaml:"logs" default:"tickpilot.logs"`
			Control string `yaml:"control" default:"tickpilot.control"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"tickpilot"`
			Workers    int           `yaml:"workers" default:"1"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tickpilot"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		CandleTable      string        `yaml:"candle_table" default:"candles_1m"`
		TradeTable       string        `yaml:"trade_table" default:"trades"`
	} `yaml:"clickhouse"`
	// JournalQueue moves trade journaling onto a redis work queue. Needs redis and clickhouse.
	JournalQueue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"5" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	} `yaml:"journal_queue"`
	SourceGuard struct {
		Timeout     time.Duration `yaml:"timeout" default:"10s"`
		MinInterval time.Duration `yaml:"min_interval"`
		BackoffMin  time.Duration `yaml:"backoff_min" default:"5s"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"2m"`
	} `yaml:"source_guard"`
	Advisory struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url"`
		Token          string        `yaml:"token"`
		Timeout        time.Duration `yaml:"timeout" default:"5s"`
		Attempts       int           `yaml:"attempts" default:"2"`
		MaxBars        int           `yaml:"max_bars" default:"60"`
		MinConfidence  float64       `yaml:"min_confidence" default:"40"`
		SkipConfidence float64       `yaml:"skip_confidence" default:"70"`
		CacheTTL       time.Duration `yaml:"cache_ttl" default:"5m"`
		RateCapacity   float64       `yaml:"rate_capacity" default:"5"`
		RateRefill     float64       `yaml:"rate_refill" default:"0.2"`
	} `yaml:"advisory"`
	Regime struct {
		ThresholdA     int           `yaml:"threshold_a" default:"3"`
		ThresholdB     int           `yaml:"threshold_b" default:"7"`
		BaseSessions   int           `yaml:"base_sessions" default:"5" validate:"gte=1"`
		ShiftThreshold float64       `yaml:"shift_threshold" default:"0.7" validate:"gt=0"`
		FirstHour      time.Duration `yaml:"first_hour" default:"1h"`
	} `yaml:"regime"`
	Quality struct {
		MinFirstHourATR float64 `yaml:"min_first_hour_atr" default:"0.3" validate:"gte=0"`
		MinSlope        float64 `yaml:"min_slope" default:"0.003" validate:"gte=0"`
		MinScore        float64 `yaml:"min_score" default:"0.5" validate:"gte=0,lte=1"`
		AdaptiveADX     bool    `yaml:"adaptive_adx"`
		Weights         struct {
			Trend    float64 `yaml:"trend" default:"0.4" validate:"gte=0"`
			Pullback float64 `yaml:"pullback" default:"0.4" validate:"gte=0"`
			Volume   float64 `yaml:"volume" default:"0.2" validate:"gte=0"`
		} `yaml:"weights"`
	} `yaml:"quality"`
	Risk struct {
		Capital                float64           `yaml:"capital" default:"500000" validate:"gt=0"`
		MaxRiskPerTrade        float64           `yaml:"max_risk_per_trade" default:"0.003" validate:"gt=0,lt=1"`
		MaxDailyDrawdown       float64           `yaml:"max_daily_drawdown" default:"0.02" validate:"gt=0,lt=1"`
		MaxDailyLoss           float64           `yaml:"max_daily_loss" default:"5000" validate:"gt=0"`
		MaxConcurrentPositions int               `yaml:"max_concurrent_positions" default:"4" validate:"gte=1"`
		MaxSectorPositions     int               `yaml:"max_sector_positions" default:"2" validate:"gte=1"`
		MaxSymbolExposure      float64           `yaml:"max_symbol_exposure" default:"0.25" validate:"gt=0,lte=1"`
		KillSwitchDrawdown     float64           `yaml:"kill_switch_drawdown" default:"0.05" validate:"gte=0,lt=1"`
		MaxTradesPerDay        int               `yaml:"max_trades_per_day" default:"2" validate:"gte=0"`
		Sectors                map[string]string `yaml:"sectors"`
	} `yaml:"risk"`
	StateMachine struct {
		MaxDailyLosses         int           `yaml:"max_daily_losses" default:"2" validate:"gte=1"`
		LockDuration           time.Duration `yaml:"lock_duration" default:"30m"`
		LossRequiresStopReason bool          `yaml:"loss_requires_stop_reason"`
	} `yaml:"state_machine"`
	Trailing struct {
		ActivationATR float64 `yaml:"activation_atr" default:"1.5" validate:"gte=0"`
		DistanceATR   float64 `yaml:"distance_atr" default:"1.5" validate:"gt=0"`
	} `yaml:"trailing"`
	Costs struct {
		BrokeragePerSide float64 `yaml:"brokerage_per_side" default:"20" validate:"gte=0"`
		STT              float64 `yaml:"stt" default:"0.001" validate:"gte=0"`
		Slippage         float64 `yaml:"slippage" default:"0.0005" validate:"gte=0"`
	} `yaml:"costs"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Missing keys take their
// `default` tag values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.Sources) == 0 {
		c.Sources = []string{"broker"}
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads .env when present, then the YAML file, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TICKPILOT_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Engine.Symbols = splitList(v)
	}
	if v := os.Getenv("SOURCES"); v != "" {
		c.Sources = splitList(v)
	}
	if v := os.Getenv("BROKER"); v != "" {
		c.Broker.Type = v
	}
	if v := os.Getenv("CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CAPITAL: %w", err)
		}
		c.Risk.Capital = f
	}
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		c.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		c.Alpaca.APISecret = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("ADVISORY_URL"); v != "" {
		c.Advisory.URL = v
		c.Advisory.Enabled = true
	}
	if v := os.Getenv("ADVISORY_TOKEN"); v != "" {
		c.Advisory.Token = v
	}
	if v := os.Getenv("LOG_COLLECT"); v != "" {
		c.Log.Collect = xutil.ParseBool(v)
	}
	if v := os.Getenv("JOURNAL_QUEUE"); v != "" {
		c.JournalQueue.Enabled = xutil.ParseBool(v)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Regime.ThresholdA <= 0 || c.Regime.ThresholdA >= c.Regime.ThresholdB {
		return fmt.Errorf("regime thresholds must satisfy 0 < threshold_a < threshold_b")
	}
	if w := c.Quality.Weights; w.Trend+w.Pullback+w.Volume <= 0 {
		return fmt.Errorf("quality.weights must not all be zero")
	}
	if c.Broker.Type == "alpaca" && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fmt.Errorf("alpaca.api_key and alpaca.api_secret are required for broker.type=alpaca")
	}
	for _, s := range c.Sources {
		switch s {
		case "finnhub", "finnhub_stream":
			if c.Finnhub.APIKey == "" {
				return fmt.Errorf("finnhub.api_key is required for source %q", s)
			}
		case "clickhouse":
			if !c.ClickHouse.Enabled {
				return fmt.Errorf("clickhouse.enabled is required for source clickhouse")
			}
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.JournalQueue.Enabled && (!c.Redis.Enabled || !c.ClickHouse.Enabled) {
		return fmt.Errorf("journal_queue needs redis.enabled and clickhouse.enabled")
	}
	if c.Advisory.Enabled && c.Advisory.URL == "" {
		return fmt.Errorf("advisory.url is required when advisory is enabled")
	}
	return nil
}
