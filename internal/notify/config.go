// Package notify 把待发送的邮件通知投递到 Kafka, 由外部发送服务消费
package notify

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
)

// Config Kafka 投递配置
type Config struct {
	// Enabled 关闭时邮件通知保持 pending, 由外部轮询
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Brokers Kafka broker 地址列表
	Brokers []string `yaml:"brokers" json:"brokers"`
	// ClientID 客户端标识
	ClientID string `yaml:"client_id" json:"client_id"`
	// Version Kafka 版本 (如 "2.8.0")
	Version string `yaml:"version" json:"version"`
	// Topic 邮件通知主题
	Topic string `yaml:"topic" json:"topic"`

	// Idempotent 是否启用幂等生产者
	Idempotent bool `yaml:"idempotent" json:"idempotent"`
	// RequiredAcks 确认级别: 0=不等待, 1=Leader确认, -1=所有ISR确认
	RequiredAcks int `yaml:"required_acks" json:"required_acks"`
	// RetryMax 最大重试次数
	RetryMax int `yaml:"retry_max" json:"retry_max"`
	// RetryBackoff 重试间隔
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
	// Compression 压缩算法: none, gzip, snappy, lz4, zstd
	Compression string `yaml:"compression" json:"compression"`
	// Timeout 发送超时
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// SASL 认证配置
	SASL *SASLConfig `yaml:"sasl" json:"sasl"`
	// TLS 配置
	TLS *TLSConfig `yaml:"tls" json:"tls"`
}

// SASLConfig SASL 认证配置
type SASLConfig struct {
	Enable bool `yaml:"enable" json:"enable"`
	// Mechanism 认证机制: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Mechanism string `yaml:"mechanism" json:"mechanism"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"-"`
}

// TLSConfig TLS 配置
type TLSConfig struct {
	Enable             bool   `yaml:"enable" json:"enable"`
	CertFile           string `yaml:"cert_file" json:"cert_file"`
	KeyFile            string `yaml:"key_file" json:"key_file"`
	CAFile             string `yaml:"ca_file" json:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		ClientID:     "eidos-whalesync",
		Version:      "2.8.0",
		Topic:        "whalesync.notifications.email",
		Idempotent:   true,
		RequiredAcks: -1,
		RetryMax:     3,
		RetryBackoff: 100 * time.Millisecond,
		Compression:  "snappy",
		Timeout:      10 * time.Second,
	}
}

// buildSaramaConfig 构建同步生产者配置
func buildSaramaConfig(cfg Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()

	if cfg.Version != "" {
		version, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("parse kafka version failed: %w", err)
		}
		sc.Version = version
	}
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	if cfg.Idempotent {
		sc.Producer.Idempotent = true
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Net.MaxOpenRequests = 1 // 幂等需要
	} else {
		switch cfg.RequiredAcks {
		case 0:
			sc.Producer.RequiredAcks = sarama.NoResponse
		case 1:
			sc.Producer.RequiredAcks = sarama.WaitForLocal
		default:
			sc.Producer.RequiredAcks = sarama.WaitForAll
		}
	}

	sc.Producer.Retry.Max = cfg.RetryMax
	if cfg.RetryBackoff > 0 {
		sc.Producer.Retry.Backoff = cfg.RetryBackoff
	}

	switch cfg.Compression {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
	}
	// 同步生产者需要返回结果
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	if cfg.SASL != nil && cfg.SASL.Enable {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.SASL.Username
		sc.Net.SASL.Password = cfg.SASL.Password

		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: SHA256}
			}
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: SHA512}
			}
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if cfg.TLS != nil && cfg.TLS.Enable {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("build tls config failed: %w", err)
		}
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = tlsConfig
	}

	return sc, nil
}

func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load cert pair failed: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file failed: %w", err)
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}
