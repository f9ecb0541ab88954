// Package config 加载 whale-sync 服务配置: yaml 文件 + 环境变量替换 + 默认值 + 环境变量覆盖
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/jobs"
	"github.com/eidos-exchange/eidos-whalesync/internal/notify"
	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/pkg/circuitbreaker"
	"github.com/eidos-exchange/eidos-whalesync/pkg/retry"
)

type Config struct {
	Service   ServiceConfig        `yaml:"service" json:"service"`
	Postgres  PostgresConfig       `yaml:"postgres" json:"postgres"`
	Redis     RedisConfig          `yaml:"redis" json:"redis"`
	Kafka     notify.Config        `yaml:"kafka" json:"kafka"`
	Upstream  UpstreamConfig       `yaml:"upstream" json:"upstream"`
	Sync      jobs.SyncConfig      `yaml:"sync" json:"sync"`
	Jobs      map[string]JobConfig `yaml:"jobs" json:"jobs"`
	Scheduler SchedulerConfig      `yaml:"scheduler" json:"scheduler"`
	HTTP      HTTPConfig           `yaml:"http" json:"http"`
	Log       LogConfig            `yaml:"log" json:"log"`
}

type ServiceConfig struct {
	Name string `yaml:"name" json:"name"`
	Env  string `yaml:"env" json:"env"`
}

type PostgresConfig struct {
	Host                   string `yaml:"host" json:"host"`
	Port                   int    `yaml:"port" json:"port"`
	User                   string `yaml:"user" json:"user"`
	Password               string `yaml:"password" json:"-"`
	Database               string `yaml:"database" json:"database"`
	SSLMode                string `yaml:"ssl_mode" json:"ssl_mode"`
	MaxConnections         int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns           int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
	// false 时跳过启动迁移 (由外部流程执行)
	AutoMigrate *bool `yaml:"auto_migrate" json:"auto_migrate"`
}

// DSN postgres 连接串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// MigrateOnStart 未配置时默认启动即迁移
func (c PostgresConfig) MigrateOnStart() bool {
	return c.AutoMigrate == nil || *c.AutoMigrate
}

type RedisConfig struct {
	// 为空时关闭分布式锁
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UpstreamConfig 上游行情接口
type UpstreamConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url"`
	LeaderboardURL string                `yaml:"leaderboard_url" json:"leaderboard_url"`
	APIKey         string                `yaml:"api_key" json:"-"`
	Timeout        time.Duration         `yaml:"timeout" json:"timeout"`
	Retry          retry.Config          `yaml:"retry" json:"retry"`
	Breaker        circuitbreaker.Config `yaml:"breaker" json:"breaker"`
}

// ClientConfig 转换为上游客户端配置
func (c UpstreamConfig) ClientConfig() client.Config {
	return client.Config{
		BaseURL:  c.BaseURL,
		ProxyURL: c.LeaderboardURL,
		APIKey:   c.APIKey,
		Timeout:  c.Timeout,
		Breaker:  c.Breaker,
	}
}

// JobConfig 单个任务的调度配置, 未填写的字段使用 scheduler.DefaultJobConfigs
type JobConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	Cron    string `yaml:"cron" json:"cron"`
}

type SchedulerConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	// 启动时超过该时长仍为 running 的执行记录标记为失败
	StaleExecutionAfter time.Duration `yaml:"stale_execution_after" json:"stale_execution_after"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Job 合并后的任务调度配置
func (c *Config) Job(name string) scheduler.JobDefaults {
	def := scheduler.DefaultJobConfigs[name]
	jc, ok := c.Jobs[name]
	if !ok {
		return def
	}
	if jc.Enabled != nil {
		def.Enabled = *jc.Enabled
	}
	if jc.Cron != "" {
		def.Cron = jc.Cron
	}
	return def
}

// Validate 校验启动必需的配置
func (c *Config) Validate() error {
	for name, jc := range c.Jobs {
		if _, ok := scheduler.DefaultJobConfigs[name]; !ok {
			return fmt.Errorf("jobs.%s: unknown job", name)
		}
		if jc.Cron != "" {
			if err := scheduler.ValidateCron(jc.Cron); err != nil {
				return fmt.Errorf("jobs.%s: %w", name, err)
			}
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.enabled requires kafka.brokers")
	}
	return nil
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFile(getConfigPath())
}

// LoadFile 从指定文件加载; 文件不存在时只使用默认值和环境变量
func LoadFile(configPath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	if err == nil {
		// 先替换环境变量再解析
		content := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getConfigPath 获取配置文件路径
func getConfigPath() string {
	// 1. 环境变量
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	// 2. 当前目录
	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}

	// 3. 可执行文件目录
	if exe, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(exe), "config", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "config/config.yaml"
}

// applyDefaults 应用默认配置
func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "eidos-whalesync"
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	// Postgres 默认值
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.User == "" {
		cfg.Postgres.User = "eidos"
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = "eidos_whalesync"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 10
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Postgres.ConnMaxLifetimeMinutes == 0 {
		cfg.Postgres.ConnMaxLifetimeMinutes = 30
	}

	// Redis 默认值
	if cfg.Redis.Host != "" && cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 20
	}

	// Kafka 默认值
	def := notify.DefaultConfig()
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = def.ClientID
	}
	if cfg.Kafka.Version == "" {
		cfg.Kafka.Version = def.Version
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = def.Topic
	}
	if cfg.Kafka.RequiredAcks == 0 {
		cfg.Kafka.RequiredAcks = def.RequiredAcks
	}
	if cfg.Kafka.RetryMax == 0 {
		cfg.Kafka.RetryMax = def.RetryMax
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = def.RetryBackoff
	}
	if cfg.Kafka.Compression == "" {
		cfg.Kafka.Compression = def.Compression
	}
	if cfg.Kafka.Timeout == 0 {
		cfg.Kafka.Timeout = def.Timeout
	}

	// 上游默认值
	if cfg.Upstream.LeaderboardURL == "" {
		cfg.Upstream.LeaderboardURL = client.DefaultProxyURL
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 30 * time.Second
	}
	if cfg.Upstream.Retry.MaxAttempts == 0 {
		cfg.Upstream.Retry = retry.DefaultConfig()
	}
	if cfg.Upstream.Breaker.FailureThreshold == 0 {
		cfg.Upstream.Breaker = circuitbreaker.DefaultConfig()
	}

	cfg.Sync = cfg.Sync.WithDefaults()

	// 调度默认值
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 3
	}
	if cfg.Scheduler.StaleExecutionAfter == 0 {
		cfg.Scheduler.StaleExecutionAfter = 30 * time.Minute
	}

	// HTTP 默认值
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}

	// 日志默认值
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// applyEnvOverrides 从环境变量覆盖配置
func applyEnvOverrides(cfg *Config) {
	// Service
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		cfg.Service.Name = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Service.Env = v
	}

	// Postgres
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
		if cfg.Redis.Port == 0 {
			cfg.Redis.Port = 6379
		}
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Kafka
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}

	// Upstream
	if v := os.Getenv("OPINION_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("OPINION_API_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}

	// HTTP
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}

	// Log
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
