// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 checkout-service 的全量配置。
// 约定：先读 yaml 文件，再用环境变量逐项覆盖，保证容器环境下无文件也能启动。
type Config struct {
	Server struct {
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"logLevel"`
	} `yaml:"server"`

	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`

	Redis struct {
		Addr string `yaml:"addr"` // 为空时快照缓存走进程内实现，不强依赖 Redis
	} `yaml:"redis"`

	Kafka struct {
		Brokers           []string `yaml:"brokers"`
		PaymentTopic      string   `yaml:"paymentTopic"`
		PaymentDLTTopic   string   `yaml:"paymentDltTopic"`
		NotificationTopic string   `yaml:"notificationTopic"`
		ConsumerGroupID   string   `yaml:"consumerGroupId"`
	} `yaml:"kafka"`

	Gateway struct {
		BaseURL        string        `yaml:"baseUrl"`
		SecretKey      string        `yaml:"secretKey"`
		CallbackURL    string        `yaml:"callbackUrl"`
		Currency       string        `yaml:"currency"`
		MinAmount      int64         `yaml:"minAmount"` // 最小可交易金额（最小货币单位）
		RequestTimeout time.Duration `yaml:"requestTimeout"`
		MaxRetries     int           `yaml:"maxRetries"`
	} `yaml:"gateway"`

	Checkout struct {
		ShippingFee      int64         `yaml:"shippingFee"` // 固定运费（最小货币单位）
		CartCacheTTL     time.Duration `yaml:"cartCacheTtl"`
		DeliveryLeadDays int           `yaml:"deliveryLeadDays"`
		PolicyRules      []string      `yaml:"policyRules"` // CEL 表达式，任意一条求值为 false 则拒绝下单
	} `yaml:"checkout"`

	Identity struct {
		BaseURL string `yaml:"baseUrl"` // 为空时用裸用户 ID 兜底，不做外呼
	} `yaml:"identity"`

	Zookeeper struct {
		Enabled bool     `yaml:"enabled"`
		Addrs   []string `yaml:"addrs"`
	} `yaml:"zookeeper"`

	Nacos struct {
		Enabled     bool   `yaml:"enabled"`
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`

	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
}

// Load 读取配置文件（可选）并应用环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Gateway.SecretKey == "" {
		return nil, fmt.Errorf("gateway secret key is not configured")
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.LogLevel = "info"
	cfg.MySQL.DSN = "root:root@tcp(localhost:3306)/bazaar?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.PaymentTopic = "payment-events"
	cfg.Kafka.PaymentDLTTopic = "payment-events-dlt"
	cfg.Kafka.NotificationTopic = "notifications"
	cfg.Kafka.ConsumerGroupID = "checkout-payment-group"
	cfg.Gateway.BaseURL = "https://api.paystack.co"
	cfg.Gateway.Currency = "NGN"
	cfg.Gateway.MinAmount = 100
	cfg.Gateway.RequestTimeout = 12 * time.Second
	cfg.Gateway.MaxRetries = 2
	cfg.Checkout.ShippingFee = 750
	cfg.Checkout.CartCacheTTL = 30 * time.Second
	cfg.Checkout.DeliveryLeadDays = 5
	cfg.Nacos.Group = "DEFAULT_GROUP"
	cfg.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	return cfg
}

// applyEnv 用环境变量覆盖配置，键名与部署清单保持一致。
func (c *Config) applyEnv() {
	c.Server.Port = envInt("SERVER_PORT", c.Server.Port)
	c.Server.LogLevel = envStr("LOG_LEVEL", c.Server.LogLevel)
	c.MySQL.DSN = envStr("MYSQL_DSN", c.MySQL.DSN)
	c.Redis.Addr = envStr("REDIS_ADDR", c.Redis.Addr)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Kafka.PaymentTopic = envStr("KAFKA_PAYMENT_TOPIC", c.Kafka.PaymentTopic)
	c.Kafka.PaymentDLTTopic = envStr("KAFKA_PAYMENT_DLT_TOPIC", c.Kafka.PaymentDLTTopic)
	c.Kafka.NotificationTopic = envStr("KAFKA_NOTIFICATION_TOPIC", c.Kafka.NotificationTopic)
	c.Gateway.BaseURL = envStr("GATEWAY_BASE_URL", c.Gateway.BaseURL)
	c.Gateway.SecretKey = envStr("GATEWAY_SECRET_KEY", c.Gateway.SecretKey)
	c.Gateway.CallbackURL = envStr("GATEWAY_CALLBACK_URL", c.Gateway.CallbackURL)
	c.Gateway.Currency = envStr("GATEWAY_CURRENCY", c.Gateway.Currency)
	c.Identity.BaseURL = envStr("IDENTITY_BASE_URL", c.Identity.BaseURL)
	if v := os.Getenv("ZOOKEEPER_ADDRS"); v != "" {
		c.Zookeeper.Enabled = true
		c.Zookeeper.Addrs = strings.Split(v, ",")
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		c.Nacos.Enabled = true
		c.Nacos.ServerAddrs = v
	}
	c.Nacos.Namespace = envStr("NACOS_NAMESPACE", c.Nacos.Namespace)
	c.Nacos.Group = envStr("NACOS_GROUP", c.Nacos.Group)
	c.Jaeger.Endpoint = envStr("JAEGER_ENDPOINT", c.Jaeger.Endpoint)
}

func envStr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
