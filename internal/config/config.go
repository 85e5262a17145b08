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
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env               string        `json:"env"`                 // 运行环境: local / prod
	LogLevel          string        `json:"log_level"`           // 日志级别: debug / info / warn / error
	HTTPAddr          string        `json:"http_addr"`           // API 服务监听地址
	CORSOrigins       []string      `json:"cors_origins"`        // 允许的跨域来源
	TokenTTL          time.Duration `json:"token_ttl"`           // JWT 有效期（如 "24h"）
	OTPTTL            time.Duration `json:"otp_ttl"`             // 验证码有效期（如 "10m"）
	ResendCooldown    time.Duration `json:"resend_cooldown"`     // 验证码重发冷却（如 "60s"）
	DefaultPageSize   int           `json:"default_page_size"`   // 分页默认条数
	MaxPageSize       int           `json:"max_page_size"`       // 分页最大条数
	WorkerPoolSize    int           `json:"worker_pool_size"`    // 异步任务 worker 数
	QueueCapacity     int           `json:"queue_capacity"`      // 异步任务队列容量
	RateLimit         float64       `json:"rate_limit"`          // 认证接口限流速率（token/s，按 IP）
	RateBurst         float64       `json:"rate_burst"`          // 限流桶容量
	UploadDir         string        `json:"upload_dir"`          // 上传文件目录
	MaxUploadSize     int64         `json:"max_upload_size"`     // 上传大小上限（字节）
	ScheduleInterval  time.Duration `json:"schedule_interval"`   // 维护任务调度间隔（如 "10m"）
	CleanupOrphanTags bool          `json:"cleanup_orphan_tags"` // 是否清理无引用标签（默认保留）

	// Redis 邮件队列配置
	EnableMailQueue bool   `json:"enable_mail_queue"` // 是否启用 Redis 邮件队列（默认进程内发送）
	MailQueueKey    string `json:"mail_queue_key"`    // Redis List 键名
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // JWT 签名密钥
}

// IsProd 报告是否运行在生产环境。
//
// 生产环境下注册响应不得携带验证码明文。
func (c *Config) IsProd() bool {
	return strings.EqualFold(strings.TrimSpace(c.App.Env), "prod")
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值；
// 无论哪种情况，环境变量始终可以覆盖配置项。
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

	return cfg, nil
}

// LoadOrDefault 加载配置，如果失败则返回默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:               "local",
			LogLevel:          "info",
			HTTPAddr:          ":8000",
			CORSOrigins:       []string{"http://localhost:3000"},
			TokenTTL:          24 * time.Hour,
			OTPTTL:            10 * time.Minute,
			ResendCooldown:    60 * time.Second,
			DefaultPageSize:   12,
			MaxPageSize:       100,
			WorkerPoolSize:    8,
			QueueCapacity:     256,
			RateLimit:         3,
			RateBurst:         10,
			UploadDir:         "uploads",
			MaxUploadSize:     5 << 20,
			ScheduleInterval:  10 * time.Minute,
			CleanupOrphanTags: false,

			EnableMailQueue: false, // 默认进程内发送
			MailQueueKey:    "inkwell:queue:mail",
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/inkwell?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
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
	if len(cfg.App.CORSOrigins) == 0 {
		cfg.App.CORSOrigins = defaults.App.CORSOrigins
	}
	if cfg.App.TokenTTL == 0 {
		cfg.App.TokenTTL = defaults.App.TokenTTL
	}
	if cfg.App.OTPTTL == 0 {
		cfg.App.OTPTTL = defaults.App.OTPTTL
	}
	if cfg.App.ResendCooldown == 0 {
		cfg.App.ResendCooldown = defaults.App.ResendCooldown
	}
	if cfg.App.DefaultPageSize == 0 {
		cfg.App.DefaultPageSize = defaults.App.DefaultPageSize
	}
	if cfg.App.MaxPageSize == 0 {
		cfg.App.MaxPageSize = defaults.App.MaxPageSize
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = defaults.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity == 0 {
		cfg.App.QueueCapacity = defaults.App.QueueCapacity
	}
	if cfg.App.RateLimit == 0 {
		cfg.App.RateLimit = defaults.App.RateLimit
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.App.UploadDir == "" {
		cfg.App.UploadDir = defaults.App.UploadDir
	}
	if cfg.App.MaxUploadSize == 0 {
		cfg.App.MaxUploadSize = defaults.App.MaxUploadSize
	}
	if cfg.App.ScheduleInterval == 0 {
		cfg.App.ScheduleInterval = defaults.App.ScheduleInterval
	}
	if cfg.App.MailQueueKey == "" {
		cfg.App.MailQueueKey = defaults.App.MailQueueKey
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
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
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_CORS_ORIGINS"); v != "" {
		origins := []string{}
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.App.CORSOrigins = origins
		}
	}
	if v := os.Getenv("APP_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.TokenTTL = d
		}
	}
	if v := os.Getenv("APP_OTP_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.OTPTTL = d
		}
	}
	if v := os.Getenv("APP_RESEND_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ResendCooldown = d
		}
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("APP_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.QueueCapacity = i
		}
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}
	if v := os.Getenv("APP_UPLOAD_DIR"); v != "" {
		cfg.App.UploadDir = v
	}
	if v := os.Getenv("APP_MAX_UPLOAD_SIZE"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.App.MaxUploadSize = i
		}
	}
	if v := os.Getenv("APP_SCHEDULE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ScheduleInterval = d
		}
	}
	if v := os.Getenv("APP_CLEANUP_ORPHAN_TAGS"); v != "" {
		cfg.App.CleanupOrphanTags = v == "true" || v == "1"
	}
	if v := os.Getenv("APP_ENABLE_MAIL_QUEUE"); v != "" {
		cfg.App.EnableMailQueue = v == "true" || v == "1"
	}
	if v := os.Getenv("APP_MAIL_QUEUE_KEY"); v != "" {
		cfg.App.MailQueueKey = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			host := v
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = host + ":" + port
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
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
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
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "inkwell",
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

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		TokenTTL         string `json:"token_ttl"`
		OTPTTL           string `json:"otp_ttl"`
		ResendCooldown   string `json:"resend_cooldown"`
		ScheduleInterval string `json:"schedule_interval"`
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
	if aux.OTPTTL != "" {
		d, err := time.ParseDuration(aux.OTPTTL)
		if err != nil {
			return fmt.Errorf("invalid otp_ttl format: %w", err)
		}
		a.OTPTTL = d
	}
	if aux.ResendCooldown != "" {
		d, err := time.ParseDuration(aux.ResendCooldown)
		if err != nil {
			return fmt.Errorf("invalid resend_cooldown format: %w", err)
		}
		a.ResendCooldown = d
	}
	if aux.ScheduleInterval != "" {
		d, err := time.ParseDuration(aux.ScheduleInterval)
		if err != nil {
			return fmt.Errorf("invalid schedule_interval format: %w", err)
		}
		a.ScheduleInterval = d
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		TokenTTL         string `json:"token_ttl"`
		OTPTTL           string `json:"otp_ttl"`
		ResendCooldown   string `json:"resend_cooldown"`
		ScheduleInterval string `json:"schedule_interval"`
		*Alias
	}{
		TokenTTL:         a.TokenTTL.String(),
		OTPTTL:           a.OTPTTL.String(),
		ResendCooldown:   a.ResendCooldown.String(),
		ScheduleInterval: a.ScheduleInterval.String(),
		Alias:            (*Alias)(&a),
	})
}
