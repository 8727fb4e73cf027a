package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config アプリケーション全体の設定
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Redis       RedisConfig       `yaml:"redis"`
	MySQL       MySQLConfig       `yaml:"mysql"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig HTTPサーバーの設定
type ServerConfig struct {
	Port           string `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// ClassifierConfig 分類エンジンの設定
type ClassifierConfig struct {
	ActiveProvider      string        `yaml:"active_provider"`
	FallbackProvider    string        `yaml:"fallback_provider"`
	LocalModelPath      string        `yaml:"local_model_path"`
	LocalInputSize      int           `yaml:"local_input_size"`
	ONNXRuntimeLib      string        `yaml:"onnxruntime_lib"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	TopK                int           `yaml:"top_k"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
}

// HuggingFaceConfig Hugging Face Inference APIの設定
type HuggingFaceConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	APIURL string `yaml:"api_url"`
}

// GeminiConfig Gemini APIの設定。APIURL はSDKのベースURL（APIバージョンはSDKが付与）
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	APIURL string `yaml:"api_url"`
}

// OpenAIConfig OpenAI APIの設定
type OpenAIConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RedisConfig Redisの設定
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQLの設定
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// LogConfig ログ出力の設定
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load 設定ファイルを読み込む
func Load(configPath string) (*Config, error) {
	// 設定ファイルが存在しない場合はデフォルト設定を返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 環境変数の展開
	dataStr := os.ExpandEnv(string(data))

	// ファイルに無い項目はデフォルト値のまま
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(dataStr), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// DefaultConfig デフォルト設定を返す
func DefaultConfig() *Config {
	// Redis/MySQLのホストはテスト環境では localhost を使用
	redisHost := "redis"
	mysqlHost := "mysql"
	if os.Getenv("GO_ENV") == "test" {
		redisHost = "localhost"
		mysqlHost = "localhost"
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			MaxUploadBytes: 16 << 20,
		},
		Classifier: ClassifierConfig{
			ActiveProvider:      getEnv("AI_ACTIVE_PROVIDER", "gemini"),
			FallbackProvider:    getEnv("AI_FALLBACK_PROVIDER", "local"),
			LocalModelPath:      getEnv("LOCAL_MODEL_PATH", "models/waste_classifier.onnx"),
			LocalInputSize:      128,
			ONNXRuntimeLib:      os.Getenv("ONNXRUNTIME_LIB"),
			ConfidenceThreshold: 0.3,
			TopK:                3,
			RequestTimeout:      30 * time.Second,
			CacheTTL:            24 * time.Hour,
		},
		HuggingFace: HuggingFaceConfig{
			APIKey: os.Getenv("HUGGINGFACE_API_KEY"),
			Model:  "google/vit-base-patch16-224",
			APIURL: "https://api-inference.huggingface.co/models",
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  "gemini-2.0-flash",
			APIURL: "https://generativelanguage.googleapis.com/",
		},
		OpenAI: OpenAIConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     "gpt-4o",
			BaseURL:   "https://api.openai.com/v1",
			MaxTokens: 300,
		},
		Redis: RedisConfig{
			Host:     redisHost,
			Port:     6379,
			Password: "",
			DB:       0,
		},
		MySQL: MySQLConfig{
			Host:     mysqlHost,
			Port:     3306,
			User:     "root",
			Password: os.Getenv("MYSQL_ROOT_PASSWORD"),
			Database: "wastewise",
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
