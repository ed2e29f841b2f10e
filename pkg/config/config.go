package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Lmstfy      LmstfyConfig      `mapstructure:"lmstfy"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Detect      DetectConfig      `mapstructure:"detect"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Service     ServiceConfig     `mapstructure:"service"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LmstfyConfig Lmstfy 配置（回调队列，投递 case 创建事件给争议管理服务）
type LmstfyConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Namespace     string `mapstructure:"namespace"`
	Token         string `mapstructure:"token"`
	CallbackQueue string `mapstructure:"callback_queue"`
	CaseQueue     string `mapstructure:"case_queue"`
}

// SchedulerConfig 调度器配置
// 背压阈值、重试上限等原本容易写成散落的魔法数字，统一收敛到配置
type SchedulerConfig struct {
	QueueKey              string        `mapstructure:"queue_key"`              // Redis 队列 key 前缀
	BackpressureThreshold int64         `mapstructure:"backpressure_threshold"` // 背压阈值（low 优先级准入上限）
	MaxAttempts           int           `mapstructure:"max_attempts"`           // 最大重试次数
	DequeueTimeout        time.Duration `mapstructure:"dequeue_timeout"`        // 拉取超时（兼做维护周期）
	ErrorBackoff          time.Duration `mapstructure:"error_backoff"`          // 错误退避时间
	TTR                   time.Duration `mapstructure:"ttr"`                    // Time-To-Run，超时的 processing 任务会被回收
	SubscriberThreads     int           `mapstructure:"subscriber_threads"`     // 并发拉取数
	ProcessorThreads      int           `mapstructure:"processor_threads"`      // 并发处理数
	BufferSize            int           `mapstructure:"buffer_size"`            // inputChan 缓冲区大小
}

// DetectConfig 检测算法配置（时间窗口等领域阈值）
type DetectConfig struct {
	MinLedgerAgeDays       int `mapstructure:"min_ledger_age_days"`       // 台账最小账龄（在途库存不参与盘亏）
	RefundReturnWindowDays int `mapstructure:"refund_return_window_days"` // 退款-退货匹配窗口（Amazon 退货期）
	InboundReconcileDays   int `mapstructure:"inbound_reconcile_days"`    // 入库货件对账窗口
	FraudWindowDays        int `mapstructure:"fraud_window_days"`         // 欺诈聚合滚动窗口
	FraudRefundCount       int `mapstructure:"fraud_refund_count"`        // 无退货退款次数阈值
}

// CalibrationConfig 置信度校准配置
type CalibrationConfig struct {
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`          // 统计缓存 TTL
	FullTrustSamples int           `mapstructure:"full_trust_samples"` // 历史权重达到上限所需样本数
	MaxHistoryWeight float64       `mapstructure:"max_history_weight"` // 历史通过率的最大混合权重
}

// ServiceConfig 检测服务配置
type ServiceConfig struct {
	PromotionThreshold float64 `mapstructure:"promotion_threshold"` // Finding 升级为 case 的置信度阈值
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults 填充默认值（配置未显式给出时）
func (c *Config) ApplyDefaults() {
	if c.Scheduler.QueueKey == "" {
		c.Scheduler.QueueKey = "drp:detection"
	}
	if c.Lmstfy.CaseQueue == "" {
		c.Lmstfy.CaseQueue = "drp_case_commands"
	}
	if c.Scheduler.BackpressureThreshold <= 0 {
		c.Scheduler.BackpressureThreshold = 20
	}
	if c.Scheduler.MaxAttempts <= 0 {
		c.Scheduler.MaxAttempts = 3
	}
	if c.Scheduler.DequeueTimeout <= 0 {
		c.Scheduler.DequeueTimeout = 3 * time.Second
	}
	if c.Scheduler.ErrorBackoff <= 0 {
		c.Scheduler.ErrorBackoff = time.Second
	}
	if c.Scheduler.TTR <= 0 {
		c.Scheduler.TTR = 5 * time.Minute
	}
	if c.Scheduler.SubscriberThreads <= 0 {
		c.Scheduler.SubscriberThreads = 1
	}
	if c.Scheduler.ProcessorThreads <= 0 {
		c.Scheduler.ProcessorThreads = 4
	}
	if c.Scheduler.BufferSize <= 0 {
		c.Scheduler.BufferSize = 16
	}

	if c.Detect.MinLedgerAgeDays <= 0 {
		c.Detect.MinLedgerAgeDays = 14
	}
	if c.Detect.RefundReturnWindowDays <= 0 {
		c.Detect.RefundReturnWindowDays = 45
	}
	if c.Detect.InboundReconcileDays <= 0 {
		c.Detect.InboundReconcileDays = 90
	}
	if c.Detect.FraudWindowDays <= 0 {
		c.Detect.FraudWindowDays = 90
	}
	if c.Detect.FraudRefundCount <= 0 {
		c.Detect.FraudRefundCount = 3
	}

	if c.Calibration.CacheTTL <= 0 {
		c.Calibration.CacheTTL = 15 * time.Minute
	}
	if c.Calibration.FullTrustSamples <= 0 {
		c.Calibration.FullTrustSamples = 50
	}
	if c.Calibration.MaxHistoryWeight <= 0 {
		c.Calibration.MaxHistoryWeight = 0.7
	}

	if c.Service.PromotionThreshold <= 0 {
		c.Service.PromotionThreshold = 0.7
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Lmstfy.Host == "" {
		return fmt.Errorf("lmstfy.host is required")
	}
	if c.Lmstfy.CallbackQueue == "" {
		return fmt.Errorf("lmstfy.callback_queue is required")
	}
	if c.Calibration.MaxHistoryWeight >= 1.0 {
		return fmt.Errorf("calibration.max_history_weight must be < 1.0")
	}
	return nil
}
