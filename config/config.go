package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"suanming_maya/models"
)

type Config struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		Addr            string   `yaml:"-"` // 不从配置文件读取，而是在加载后计算
		AllowedOrigins  []string `yaml:"allowed_origins"`
		ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
		WriteTimeoutSec int      `yaml:"write_timeout_sec"`
		IdleTimeoutSec  int      `yaml:"idle_timeout_sec"`
	} `yaml:"server"`
	Log struct {
		Level    string `yaml:"level"`
		Format   string `yaml:"format"`
		Output   string `yaml:"output"`
		FilePath string `yaml:"file_path"`
	} `yaml:"log"`

	DB struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		Database        string `yaml:"database"`
		Charset         string `yaml:"charset"`
		ParseTime       bool   `yaml:"parse_time"`
		DSN             string `yaml:"-"`                 // 不从配置文件读取，而是在加载后计算
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（分钟）
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"` // 为空时额度使用进程内存储
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	// 两个外部占术子系统
	Suanming  SubsystemEndpoint `yaml:"suanming"`
	Maya      SubsystemEndpoint `yaml:"maya"`
	Subsystem struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"subsystem"`

	// OpenAI兼容的文本生成服务（默认SiliconFlow）
	LLM struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"llm"`

	// 运行时配置的初始值，启动后由管理接口修改
	Analysis struct {
		Weights             models.AggregationWeights `yaml:"weights"`
		MaxTokens           int                       `yaml:"max_tokens"`
		MonthlyLimit        int                       `yaml:"monthly_limit"`
		QuotaTimezone       string                    `yaml:"quota_timezone"`
		SubsystemTimeoutSec float64                   `yaml:"subsystem_timeout_sec"`
		RequestTimeoutSec   float64                   `yaml:"request_timeout_sec"`
		InsightTimeoutSec   float64                   `yaml:"insight_timeout_sec"`
		ReservationTTLSec   int                       `yaml:"reservation_ttl_sec"`
		HistoryLimit        int                       `yaml:"history_limit"`
	} `yaml:"analysis"`

	Admin struct {
		Token string `yaml:"token"` // 为空时管理接口全部拒绝
	} `yaml:"admin"`

	Housekeeping struct {
		Schedule             string `yaml:"schedule"`               // 标准cron表达式
		CheckIntervalSec     int    `yaml:"check_interval_sec"`     // 调度器检查间隔（秒）
		HistoryRetentionDays int    `yaml:"history_retention_days"` // 0表示永久保留
	} `yaml:"housekeeping"`
}

// SubsystemEndpoint 外部子系统地址
type SubsystemEndpoint struct {
	BaseURL string `yaml:"base_url"`
	Path    string `yaml:"path"`
}

// URL 完整请求地址
func (e SubsystemEndpoint) URL() string {
	return e.BaseURL + e.Path
}

func Load() *Config {
	// 首先尝试加载.env文件中的环境变量
	_ = godotenv.Load() // 忽略错误，如果.env文件不存在，继续使用系统环境变量

	path := getenv("CONFIG_FILE", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		// 如果config.yaml不存在，则完全从环境变量加载配置
		return loadFromEnv()
	}

	cfg, err := Parse(data)
	if err != nil {
		log.Printf("Error loading %s: %v, falling back to environment variables", path, err)
		return loadFromEnv()
	}
	log.Printf("Loading configuration from %s", path)
	return cfg
}

// Parse 解析yaml配置，补全默认值并叠加环境变量
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.finalize()
	return cfg, nil
}

// Default 所有字段的默认值，与管理画面初始值一致
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.ReadTimeoutSec = 15
	cfg.Server.WriteTimeoutSec = 60
	cfg.Server.IdleTimeoutSec = 120
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.DB.Charset = "utf8mb4"
	cfg.DB.ParseTime = true
	cfg.Suanming.Path = "/api/v1/suanming"
	cfg.Maya.Path = "/api/v1/maya"
	cfg.LLM.BaseURL = "https://api.siliconflow.cn/v1"
	cfg.LLM.Model = "Qwen/Qwen2.5-7B-Instruct"
	cfg.Analysis.Weights = models.AggregationWeights{Suanming: 0.6, Maya: 0.4}
	cfg.Analysis.MaxTokens = 900
	cfg.Analysis.MonthlyLimit = 50
	cfg.Analysis.QuotaTimezone = "Asia/Tokyo"
	cfg.Analysis.SubsystemTimeoutSec = 5
	cfg.Analysis.RequestTimeoutSec = 30
	cfg.Analysis.InsightTimeoutSec = 15
	cfg.Analysis.ReservationTTLSec = 120
	cfg.Analysis.HistoryLimit = 50
	cfg.Housekeeping.Schedule = "0 3 * * *"
	cfg.Housekeeping.CheckIntervalSec = 60
	return &cfg
}

// applyEnv 从环境变量中加载敏感信息
func (cfg *Config) applyEnv() {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	// 数据库用户名和密码
	if v := os.Getenv("DATABASE_USERNAME"); v != "" {
		cfg.DB.Username = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SUBSYSTEM_API_KEY"); v != "" {
		cfg.Subsystem.APIKey = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
}

// finalize 计算派生字段
func (cfg *Config) finalize() {
	cfg.Server.Addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// 只有在没有直接提供DSN且有主机信息时才构建DSN
	if cfg.DB.DSN == "" && cfg.DB.Host != "" {
		if cfg.DB.Charset == "" {
			cfg.DB.Charset = "utf8mb4"
		}
		parseTime := ""
		if cfg.DB.ParseTime {
			parseTime = "&parseTime=true&loc=UTC"
		}
		cfg.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s%s",
			cfg.DB.Username,
			cfg.DB.Password,
			cfg.DB.Host,
			cfg.DB.Port,
			cfg.DB.Database,
			cfg.DB.Charset,
			parseTime)
	}
}

func loadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	cfg.finalize()
	log.Println("配置从环境变量加载，部分配置可能缺失")
	return cfg
}

// Validate 启动前校验，不合法的配置直接拒绝启动
func (cfg *Config) Validate() error {
	a := cfg.Analysis
	if !a.Weights.Valid() {
		return fmt.Errorf("analysis.weights invalid: w_suanming=%v w_maya=%v", a.Weights.Suanming, a.Weights.Maya)
	}
	if !models.ValidMaxTokens(a.MaxTokens) {
		return fmt.Errorf("analysis.max_tokens must be within [%d,%d]", models.MinMaxTokens, models.MaxMaxTokens)
	}
	if !models.ValidMonthlyLimit(a.MonthlyLimit) {
		return fmt.Errorf("analysis.monthly_limit must be within [%d,%d]", models.MinMonthlyLimit, models.MaxMonthlyLimit)
	}
	if a.SubsystemTimeoutSec <= 0 || a.RequestTimeoutSec <= 0 || a.InsightTimeoutSec <= 0 {
		return fmt.Errorf("analysis timeouts must be positive")
	}
	// 整体超时至少要覆盖一次完整的重试周期和文字建议
	if a.RequestTimeoutSec < 2*a.SubsystemTimeoutSec+a.InsightTimeoutSec {
		return fmt.Errorf("analysis.request_timeout_sec (%v) must be >= 2 x subsystem_timeout_sec (%v) + insight_timeout_sec (%v)",
			a.RequestTimeoutSec, a.SubsystemTimeoutSec, a.InsightTimeoutSec)
	}
	// 预约在请求结束前过期会让其他请求占用同一个名额
	if float64(a.ReservationTTLSec) < a.RequestTimeoutSec {
		return fmt.Errorf("analysis.reservation_ttl_sec (%d) must be >= request_timeout_sec (%v)",
			a.ReservationTTLSec, a.RequestTimeoutSec)
	}
	if _, err := time.LoadLocation(a.QuotaTimezone); err != nil {
		return fmt.Errorf("analysis.quota_timezone: %w", err)
	}
	if cfg.Suanming.BaseURL == "" || cfg.Maya.BaseURL == "" {
		return fmt.Errorf("suanming.base_url and maya.base_url are required")
	}
	return nil
}

// InitialSettings 由配置文件构造运行时配置的初始快照
func (cfg *Config) InitialSettings() models.RuntimeSettings {
	a := cfg.Analysis
	return models.RuntimeSettings{
		Weights:          a.Weights,
		LLM:              models.LLMSettings{MaxTokens: a.MaxTokens, Model: cfg.LLM.Model},
		MonthlyLimit:     a.MonthlyLimit,
		SubsystemTimeout: seconds(a.SubsystemTimeoutSec),
		RequestTimeout:   seconds(a.RequestTimeoutSec),
		InsightTimeout:   seconds(a.InsightTimeoutSec),
	}
}

// QuotaLocation 额度按月结算使用的时区
func (cfg *Config) QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(cfg.Analysis.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
