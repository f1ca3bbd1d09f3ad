package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// 账户变体
const (
	VariantOZ     = "oz"     // OpenZeppelin 账户（constructor: [publicKey]）
	VariantArgent = "argent" // 带 guardian 的账户（constructor: [owner, 0]）
)

// StarknetConfig 链上配置
type StarknetConfig struct {
	RPCEndpoint          string // RPC 节点地址（为空则所有链上操作降级为不可用）
	DerivationSecret     string // 共享派生密钥（为空则使用随机私钥，进程重启后不可恢复）
	AccountVariant       string // 账户变体: oz | argent
	ClassHashOverride    string // 显式 class hash（为空则使用变体默认值）
	TokenContractAddress string // 余额查询的 ERC20 合约地址
	DeployTimeoutSeconds int    // 部署确认超时（秒），默认 180
	DeployPollSeconds    int    // 部署确认轮询间隔（秒），默认 5
}

// DedupConfig 去重窗口配置（毫秒）
type DedupConfig struct {
	RouterWindowMs int // 路由防抖窗口，默认 3000
	ActionWindowMs int // 动作单次执行窗口，默认 5000
	WarnWindowMs   int // 无账户提醒节流窗口，默认 10000
}

// StoreConfig 账户存储配置
type StoreConfig struct {
	Backend             string // memory | badger
	BadgerPath          string // badger 数据目录
	BadgerEncryptionKey string // 32 字节密钥（hex/base64），为空则不加密
}

// GatewayConfig 聊天网关配置
type GatewayConfig struct {
	ListenAddr    string // HTTP 监听地址，默认 :8086
	WebhookURL    string // 响应回推地址（可选，为空则只在 HTTP 响应中返回）
	Source        string // 接受的消息来源，默认 chat
	RatePerMinute int    // 每分钟最大入站消息数，默认 120，0 表示不限制
}

// Config 应用配置
type Config struct {
	Starknet StarknetConfig
	Dedup    DedupConfig
	Store    StoreConfig
	Gateway  GatewayConfig
	LogLevel string // 日志级别
	LogFile  string // 日志文件路径（可选）
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Starknet struct {
		RPCEndpoint          string `yaml:"rpc_endpoint" json:"rpc_endpoint"`
		DerivationSecret     string `yaml:"derivation_secret" json:"derivation_secret"`
		AccountVariant       string `yaml:"account_variant" json:"account_variant"`
		ClassHashOverride    string `yaml:"class_hash_override" json:"class_hash_override"`
		TokenContractAddress string `yaml:"token_contract_address" json:"token_contract_address"`
		DeployTimeoutSeconds int    `yaml:"deploy_timeout_seconds" json:"deploy_timeout_seconds"`
		DeployPollSeconds    int    `yaml:"deploy_poll_seconds" json:"deploy_poll_seconds"`
	} `yaml:"starknet" json:"starknet"`
	Dedup struct {
		RouterWindowMs int `yaml:"router_window_ms" json:"router_window_ms"`
		ActionWindowMs int `yaml:"action_window_ms" json:"action_window_ms"`
		WarnWindowMs   int `yaml:"warn_window_ms" json:"warn_window_ms"`
	} `yaml:"dedup" json:"dedup"`
	Store struct {
		Backend             string `yaml:"backend" json:"backend"`
		BadgerPath          string `yaml:"badger_path" json:"badger_path"`
		BadgerEncryptionKey string `yaml:"badger_encryption_key" json:"badger_encryption_key"`
	} `yaml:"store" json:"store"`
	Gateway struct {
		ListenAddr    string `yaml:"listen_addr" json:"listen_addr"`
		WebhookURL    string `yaml:"webhook_url" json:"webhook_url"`
		Source        string `yaml:"source" json:"source"`
		RatePerMinute int    `yaml:"rate_per_minute" json:"rate_per_minute"`
	} `yaml:"gateway" json:"gateway"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// LoadFromFile 从指定文件加载配置（filePath 为空则只使用环境变量和默认值）
func LoadFromFile(filePath string) (*Config, error) {
	var configFile *ConfigFile
	if filePath != "" {
		var err error
		configFile, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	if configFile == nil {
		configFile = &ConfigFile{}
	}

	// 优先级：配置文件 > 环境变量 > 默认值
	config := &Config{
		Starknet: StarknetConfig{
			RPCEndpoint:          stringValue(configFile.Starknet.RPCEndpoint, getEnv("STARKNET_RPC_URL", "")),
			DerivationSecret:     stringValue(configFile.Starknet.DerivationSecret, getEnv("ALCANCIA_DERIVATION_SECRET", "")),
			AccountVariant:       stringValue(configFile.Starknet.AccountVariant, getEnv("ALCANCIA_ACCOUNT_VARIANT", VariantOZ)),
			ClassHashOverride:    stringValue(configFile.Starknet.ClassHashOverride, getEnv("ALCANCIA_CLASS_HASH", "")),
			TokenContractAddress: stringValue(configFile.Starknet.TokenContractAddress, getEnv("ALCANCIA_TOKEN_CONTRACT", "")),
			DeployTimeoutSeconds: intValue(configFile.Starknet.DeployTimeoutSeconds, parseIntEnv("ALCANCIA_DEPLOY_TIMEOUT_SECONDS", 180)),
			DeployPollSeconds:    intValue(configFile.Starknet.DeployPollSeconds, parseIntEnv("ALCANCIA_DEPLOY_POLL_SECONDS", 5)),
		},
		Dedup: DedupConfig{
			RouterWindowMs: intValue(configFile.Dedup.RouterWindowMs, parseIntEnv("ALCANCIA_ROUTER_WINDOW_MS", 3000)),
			ActionWindowMs: intValue(configFile.Dedup.ActionWindowMs, parseIntEnv("ALCANCIA_ACTION_WINDOW_MS", 5000)),
			WarnWindowMs:   intValue(configFile.Dedup.WarnWindowMs, parseIntEnv("ALCANCIA_WARN_WINDOW_MS", 10000)),
		},
		Store: StoreConfig{
			Backend:             stringValue(configFile.Store.Backend, getEnv("ALCANCIA_STORE_BACKEND", "memory")),
			BadgerPath:          stringValue(configFile.Store.BadgerPath, getEnv("ALCANCIA_BADGER_PATH", "data/accounts")),
			BadgerEncryptionKey: stringValue(configFile.Store.BadgerEncryptionKey, getEnv("ALCANCIA_BADGER_KEY", "")),
		},
		Gateway: GatewayConfig{
			ListenAddr:    stringValue(configFile.Gateway.ListenAddr, getEnv("ALCANCIA_LISTEN_ADDR", ":8086")),
			WebhookURL:    stringValue(configFile.Gateway.WebhookURL, getEnv("ALCANCIA_WEBHOOK_URL", "")),
			Source:        stringValue(configFile.Gateway.Source, getEnv("ALCANCIA_SOURCE", "chat")),
			RatePerMinute: intValue(configFile.Gateway.RatePerMinute, parseIntEnv("ALCANCIA_RATE_PER_MINUTE", 120)),
		},
		LogLevel: stringValue(configFile.LogLevel, getEnv("LOG_LEVEL", "info")),
		LogFile:  stringValue(configFile.LogFile, getEnv("LOG_FILE", "")),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return config, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Starknet.AccountVariant {
	case VariantOZ, VariantArgent:
	default:
		return fmt.Errorf("未知的账户变体: %s (支持 oz, argent)", c.Starknet.AccountVariant)
	}
	if c.Starknet.DeployTimeoutSeconds <= 0 {
		return fmt.Errorf("deploy_timeout_seconds 必须大于 0")
	}
	if c.Starknet.DeployPollSeconds <= 0 {
		return fmt.Errorf("deploy_poll_seconds 必须大于 0")
	}
	if c.Dedup.RouterWindowMs <= 0 || c.Dedup.ActionWindowMs <= 0 || c.Dedup.WarnWindowMs <= 0 {
		return fmt.Errorf("去重窗口必须大于 0")
	}
	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.BadgerPath == "" {
			return fmt.Errorf("badger 后端需要配置 badger_path")
		}
	default:
		return fmt.Errorf("未知的存储后端: %s (支持 memory, badger)", c.Store.Backend)
	}
	if c.Gateway.ListenAddr == "" {
		return fmt.Errorf("listen_addr 不能为空")
	}
	if c.Gateway.RatePerMinute < 0 {
		return fmt.Errorf("rate_per_minute 不能为负数")
	}
	return nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// stringValue 配置文件值优先，否则使用回退值
func stringValue(fileValue, fallback string) string {
	if fileValue != "" {
		return fileValue
	}
	return fallback
}

// intValue 配置文件值优先（非零），否则使用回退值
func intValue(fileValue, fallback int) int {
	if fileValue > 0 {
		return fileValue
	}
	return fallback
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
