package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// RelayConfig 定义域间中继的核心配置
type RelayConfig struct {
	Domain         string        // 本服务器所属域名，默认取主机名，进程生命周期内不变
	Token          string        // 对端引擎调用内部转发接口时携带的共享令牌，留空表示不校验
	ForwardWorkers int           // 转发协程池大小，默认 8
	ForwardQueue   int           // 转发任务队列长度，默认 256
	PeerTimeout    time.Duration // 单次对端调用超时，默认 10s
	PeerRate       int           // 对单个对端域每秒最多发起的转发调用数，默认 50
}

// DiscoveryConfig 定义域名到对端服务器端点的发现配置
type DiscoveryConfig struct {
	Mode         string              // "static" 使用配置的对端表；"redis" 使用共享注册表
	Peers        map[string][]string // 静态对端表：域名 -> 候选端点列表
	SelfEndpoint string              // redis 模式下向注册表通告的本服务器端点
	CacheTTL     time.Duration       // 解析结果的本地缓存时间，默认 30s
}

// SMTPConfig 定义 SMTP 投递前端的配置
type SMTPConfig struct {
	BindAddr string // SMTP 服务监听地址，格式 "host:port"，默认 ":2525"
	Domain   string // HELO/EHLO 响应使用的域名
	MaxConns int    // 最大并发连接数，默认 64
	MaxRate  int    // 每秒最大新建连接数，默认 16
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// RedisConfig 定义 Redis 注册表服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret       string        // JWT 签名密钥，必须至少 32 字符
	Issuer       string        // JWT 签发者标识，默认 "fedmail"
	AccessExpiry time.Duration // 访问令牌有效期，默认 1 小时
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Relay     RelayConfig
	Discovery DiscoveryConfig
	SMTP      SMTPConfig
	CORS      CORSConfig
	Log       LogConfig
	Redis     RedisConfig
	JWT       JWTConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: FEDMAIL_
// 例如: FEDMAIL_SERVER_PORT, FEDMAIL_RELAY_DOMAIN
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("fedmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("relay.domain", "")
	viper.SetDefault("relay.token", "")
	viper.SetDefault("relay.forward_workers", 8)
	viper.SetDefault("relay.forward_queue", 256)
	viper.SetDefault("relay.peer_timeout", "10s")
	viper.SetDefault("relay.peer_rate", 50)
	viper.SetDefault("discovery.mode", "static")
	viper.SetDefault("discovery.peers", "")
	viper.SetDefault("discovery.self_endpoint", "")
	viper.SetDefault("discovery.cache_ttl", "30s")
	viper.SetDefault("smtp.bind_addr", ":2525")
	viper.SetDefault("smtp.domain", "")
	viper.SetDefault("smtp.max_conns", 64)
	viper.SetDefault("smtp.max_rate", 16)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("jwt.issuer", "fedmail")
	viper.SetDefault("jwt.access_expiry", "1h")

	// 本域名默认取主机身份，与地址的域名后缀比较时决定本地/远程路由
	relayDomain := strings.ToLower(strings.TrimSpace(viper.GetString("relay.domain")))
	if relayDomain == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("relay.domain not set and hostname unavailable: %w", err)
		}
		relayDomain = strings.ToLower(hostname)
	}

	peerTimeout, err := time.ParseDuration(viper.GetString("relay.peer_timeout"))
	if err != nil {
		peerTimeout = 10 * time.Second
	}

	cacheTTL, err := time.ParseDuration(viper.GetString("discovery.cache_ttl"))
	if err != nil {
		cacheTTL = 30 * time.Second
	}

	mode := strings.ToLower(viper.GetString("discovery.mode"))
	if mode != "static" && mode != "redis" {
		return nil, fmt.Errorf("invalid discovery.mode %q (want static or redis)", mode)
	}

	peers, err := parsePeers(viper.GetString("discovery.peers"))
	if err != nil {
		return nil, err
	}

	selfEndpoint := strings.TrimSpace(viper.GetString("discovery.self_endpoint"))
	if mode == "redis" && selfEndpoint == "" {
		selfEndpoint = fmt.Sprintf("http://%s:%d", relayDomain, viper.GetInt("server.port"))
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = time.Hour
	}

	jwtSecret := viper.GetString("jwt.secret")
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("jwt.secret must be at least 32 characters long, set FEDMAIL_JWT_SECRET")
	}

	smtpDomain := viper.GetString("smtp.domain")
	if smtpDomain == "" {
		smtpDomain = relayDomain
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Relay: RelayConfig{
			Domain:         relayDomain,
			Token:          viper.GetString("relay.token"),
			ForwardWorkers: viper.GetInt("relay.forward_workers"),
			ForwardQueue:   viper.GetInt("relay.forward_queue"),
			PeerTimeout:    peerTimeout,
			PeerRate:       viper.GetInt("relay.peer_rate"),
		},
		Discovery: DiscoveryConfig{
			Mode:         mode,
			Peers:        peers,
			SelfEndpoint: selfEndpoint,
			CacheTTL:     cacheTTL,
		},
		SMTP: SMTPConfig{
			BindAddr: viper.GetString("smtp.bind_addr"),
			Domain:   smtpDomain,
			MaxConns: viper.GetInt("smtp.max_conns"),
			MaxRate:  viper.GetInt("smtp.max_rate"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:       jwtSecret,
			Issuer:       viper.GetString("jwt.issuer"),
			AccessExpiry: accessExpiry,
		},
	}

	return cfg, nil
}

// parsePeers 解析静态对端表。
//
// 格式: "y.org=http://y1:8080|http://y2:8080,z.org=http://z:8080"
// 域名小写化；同一域的多个候选端点用 | 分隔。
func parsePeers(value string) (map[string][]string, error) {
	peers := make(map[string][]string)
	for _, entry := range parseList(value) {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid discovery.peers entry %q (want domain=endpoint)", entry)
		}

		domain := strings.ToLower(strings.TrimSpace(parts[0]))
		endpoints := make([]string, 0, 1)
		for _, ep := range strings.Split(parts[1], "|") {
			ep = strings.TrimSpace(ep)
			if ep != "" {
				endpoints = append(endpoints, ep)
			}
		}
		if len(endpoints) == 0 {
			return nil, fmt.Errorf("invalid discovery.peers entry %q (no endpoints)", entry)
		}
		peers[domain] = endpoints
	}
	return peers, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 文件不存在时静默失败；已存在的环境变量优先级更高。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
