package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Security SecurityConfig `json:"security"`
	Bot      BotConfig      `json:"bot"`
	Email    EmailConfig    `json:"email"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env      string        `json:"env"`       // 运行环境: local / prod
	LogLevel string        `json:"log_level"` // 日志级别: debug / info / warn / error
	HTTPAddr string        `json:"http_addr"` // API 服务监听地址
	TokenTTL time.Duration `json:"token_ttl"` // 登录令牌有效期（如 "24h"）
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Driver string `json:"driver"` // mysql / sqlite
	DSN    string `json:"dsn"`    // 数据库连接字符串
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)，为空表示不使用 Redis
	Password string `json:"password"` // Redis 密码
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // JWT 签名密钥
}

// EmailConfig 邮件提醒配置，SMTPHost 为空表示不发送邮件。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// Enabled 是否配置了可用的 SMTP。
func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != "" && e.FromEmail != ""
}

// BotConfig 聊天机器人配置。
type BotConfig struct {
	Token           string        `json:"token"`             // Bot API 令牌
	APIURL          string        `json:"api_url"`           // Bot API 根地址
	PollTimeout     time.Duration `json:"poll_timeout"`      // 长轮询超时（如 "30s"）
	SessionBackend  string        `json:"session_backend"`   // 会话存储: memory / redis
	SessionTTL      time.Duration `json:"session_ttl"`       // Redis 会话过期时间
	SendRate        float64       `json:"send_rate"`         // 发送限流速率（token/s）
	SendBurst       float64       `json:"send_burst"`        // 发送限流桶容量
	ChatSendRate    float64       `json:"chat_send_rate"`    // 单会话发送速率（token/s）
	ChatSendBurst   float64       `json:"chat_send_burst"`   // 单会话桶容量
	MaxPollFailures int           `json:"max_poll_failures"` // 连续拉取失败上限，0 表示首次失败即退出
	DedupWindow     time.Duration `json:"dedup_window"`      // update 去重窗口
	MetricsAddr     string        `json:"metrics_addr"`      // 指标监听地址
	OutboxWorkers   int           `json:"outbox_workers"`    // 异步发送 worker 数量
	OutboxCapacity  int           `json:"outbox_capacity"`   // 异步发送队列容量

	ReminderInterval time.Duration `json:"reminder_interval"` // 到期提醒扫描间隔，负数表示关闭
	ReminderLead     time.Duration `json:"reminder_lead"`     // 提前多久提醒

	Delivery         string `json:"delivery"`           // 出站消息投递方式: direct（进程内队列）/ stream（Redis Streams）
	DeliveryMaxRetry int    `json:"delivery_max_retry"` // stream 模式下单条消息最大重试次数
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查互斥或取值受限的配置项。
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Bot.SessionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session backend %q", c.Bot.SessionBackend)
	}
	if c.Bot.SessionBackend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("session backend redis requires redis.addr")
	}
	switch c.Bot.Delivery {
	case "direct", "stream":
	default:
		return fmt.Errorf("unsupported delivery mode %q", c.Bot.Delivery)
	}
	if c.Bot.Delivery == "stream" && c.Redis.Addr == "" {
		return fmt.Errorf("delivery mode stream requires redis.addr")
	}
	if c.Bot.MaxPollFailures < 0 {
		return fmt.Errorf("bot.max_poll_failures must be >= 0")
	}
	return nil
}

func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "local",
			LogLevel: "info",
			HTTPAddr: ":8000",
			TokenTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver: "mysql",
			DSN:    "root:password@tcp(localhost:3306)/todolist?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
		Bot: BotConfig{
			APIURL:          "https://api.telegram.org",
			PollTimeout:     30 * time.Second,
			SessionBackend:  "memory",
			SessionTTL:      24 * time.Hour,
			SendRate:        25,
			SendBurst:       30,
			ChatSendRate:    1,
			ChatSendBurst:   3,
			MaxPollFailures: 5,
			DedupWindow:     24 * time.Hour,
			MetricsAddr:     ":2112",
			OutboxWorkers:   2,
			OutboxCapacity:  100,

			ReminderInterval: 10 * time.Minute,
			ReminderLead:     24 * time.Hour,

			Delivery:         "direct",
			DeliveryMaxRetry: 3,
		},
		Email: EmailConfig{
			SMTPPort: 587,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.TokenTTL == 0 {
		cfg.App.TokenTTL = defaults.App.TokenTTL
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Bot.APIURL == "" {
		cfg.Bot.APIURL = defaults.Bot.APIURL
	}
	if cfg.Bot.PollTimeout == 0 {
		cfg.Bot.PollTimeout = defaults.Bot.PollTimeout
	}
	if cfg.Bot.SessionBackend == "" {
		cfg.Bot.SessionBackend = defaults.Bot.SessionBackend
	}
	if cfg.Bot.SessionTTL == 0 {
		cfg.Bot.SessionTTL = defaults.Bot.SessionTTL
	}
	if cfg.Bot.SendRate == 0 {
		cfg.Bot.SendRate = defaults.Bot.SendRate
	}
	if cfg.Bot.SendBurst == 0 {
		cfg.Bot.SendBurst = defaults.Bot.SendBurst
	}
	if cfg.Bot.ChatSendRate == 0 {
		cfg.Bot.ChatSendRate = defaults.Bot.ChatSendRate
	}
	if cfg.Bot.ChatSendBurst == 0 {
		cfg.Bot.ChatSendBurst = defaults.Bot.ChatSendBurst
	}
	if cfg.Bot.DedupWindow == 0 {
		cfg.Bot.DedupWindow = defaults.Bot.DedupWindow
	}
	if cfg.Bot.MetricsAddr == "" {
		cfg.Bot.MetricsAddr = defaults.Bot.MetricsAddr
	}
	if cfg.Bot.OutboxWorkers == 0 {
		cfg.Bot.OutboxWorkers = defaults.Bot.OutboxWorkers
	}
	if cfg.Bot.OutboxCapacity == 0 {
		cfg.Bot.OutboxCapacity = defaults.Bot.OutboxCapacity
	}
	if cfg.Bot.ReminderInterval == 0 {
		cfg.Bot.ReminderInterval = defaults.Bot.ReminderInterval
	}
	if cfg.Bot.ReminderLead == 0 {
		cfg.Bot.ReminderLead = defaults.Bot.ReminderLead
	}
	if cfg.Bot.Delivery == "" {
		cfg.Bot.Delivery = defaults.Bot.Delivery
	}
	if cfg.Bot.DeliveryMaxRetry == 0 {
		cfg.Bot.DeliveryMaxRetry = defaults.Bot.DeliveryMaxRetry
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("bot_token", "BOT_TOKEN")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.TokenTTL = d
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	} else if cfg.Database.Driver == "mysql" &&
		(hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := viper.GetString("bot_token"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("BOT_API_URL"); v != "" {
		cfg.Bot.APIURL = v
	}
	if v := os.Getenv("BOT_SESSION_BACKEND"); v != "" {
		cfg.Bot.SessionBackend = v
	}
	if v := os.Getenv("BOT_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bot.PollTimeout = d
		}
	}
	if v := os.Getenv("BOT_MAX_POLL_FAILURES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Bot.MaxPollFailures = i
		}
	}
	if v := os.Getenv("BOT_SEND_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Bot.SendRate = f
		}
	}
	if v := os.Getenv("BOT_SEND_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Bot.SendBurst = f
		}
	}
	if v := os.Getenv("BOT_METRICS_ADDR"); v != "" {
		cfg.Bot.MetricsAddr = v
	}
	if v := os.Getenv("BOT_DELIVERY"); v != "" {
		cfg.Bot.Delivery = v
	}
	if v := os.Getenv("BOT_REMINDER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bot.ReminderInterval = d
		}
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "todolist",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TokenTTL != "" {
		d, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		a.TokenTTL = d
	}
	return nil
}

// MarshalJSON 将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		TokenTTL: a.TokenTTL.String(),
		Alias:    (*Alias)(&a),
	})
}

// UnmarshalJSON 支持 Duration 字符串。
func (b *BotConfig) UnmarshalJSON(data []byte) error {
	type Alias BotConfig
	aux := &struct {
		PollTimeout string `json:"poll_timeout"`
		SessionTTL  string `json:"session_ttl"`
		DedupWindow string `json:"dedup_window"`
		Interval    string `json:"reminder_interval"`
		Lead        string `json:"reminder_lead"`
		*Alias
	}{
		Alias: (*Alias)(b),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_timeout", aux.PollTimeout, &b.PollTimeout},
		{"session_ttl", aux.SessionTTL, &b.SessionTTL},
		{"dedup_window", aux.DedupWindow, &b.DedupWindow},
		{"reminder_interval", aux.Interval, &b.ReminderInterval},
		{"reminder_lead", aux.Lead, &b.ReminderLead},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// MarshalJSON 将 Duration 转为字符串。
func (b BotConfig) MarshalJSON() ([]byte, error) {
	type Alias BotConfig
	return json.Marshal(&struct {
		PollTimeout string `json:"poll_timeout"`
		SessionTTL  string `json:"session_ttl"`
		DedupWindow string `json:"dedup_window"`
		Interval    string `json:"reminder_interval"`
		Lead        string `json:"reminder_lead"`
		*Alias
	}{
		PollTimeout: b.PollTimeout.String(),
		SessionTTL:  b.SessionTTL.String(),
		DedupWindow: b.DedupWindow.String(),
		Interval:    b.ReminderInterval.String(),
		Lead:        b.ReminderLead.String(),
		Alias:       (*Alias)(&b),
	})
}
