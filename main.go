package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"housequant/db"
	qhttp "housequant/http"
	"housequant/llm"
	"housequant/logging"
	"housequant/ml"
	"housequant/predict"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Model struct {
		Type  string `yaml:"type"`
		Path  string `yaml:"path"`
		Watch bool   `yaml:"watch"`
	} `yaml:"model"`
	LLM struct {
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxTokens      int    `yaml:"max_tokens"`
		CacheSize      int    `yaml:"cache_size"`
	} `yaml:"llm"`
	Log logging.Config `yaml:"log"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load config
	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging
	logger, err := logging.Init(config.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	// 3. Open the history store
	store, err := db.Open(config.Database.Path)
	if err != nil {
		zap.S().Fatalw("failed to open history store", "path", config.Database.Path, "error", err)
	}
	defer store.Close()
	zap.S().Infow("history store ready", "path", config.Database.Path)

	// 4. Load the model
	model, err := ml.NewReloadableModel(config.Model.Type, config.Model.Path)
	if err != nil {
		zap.S().Fatalw("failed to load model", "type", config.Model.Type, "path", config.Model.Path, "error", err)
	}
	defer model.Stop()
	if config.Model.Watch {
		if err := model.Watch(); err != nil {
			zap.S().Warnw("model hot-reload unavailable", "error", err)
		}
	}

	// 5. Wire the service and HTTP API
	service := predict.NewService(store, model)

	api := &qhttp.API{
		Service:   service,
		Store:     store,
		Explainer: buildExplainer(config),
		Hub:       qhttp.NewHub(),
	}

	serverConfig := qhttp.DefaultServerConfig()
	if config.Http.Port != 0 {
		serverConfig.Port = config.Http.Port
	}
	if len(config.Http.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}

	server := qhttp.NewServer(serverConfig, api)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("HTTP server failed", "error", err)
		}
	}()

	// 6. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("shutting down")

	if err := server.Stop(); err != nil {
		zap.S().Warnw("server forced to shutdown", "error", err)
	}
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// buildExplainer builds the narration client, preferring the OPENAI_API_KEY
// environment variable over the config file. Returns nil when no key is
// available; the API reports that per request instead of failing startup.
func buildExplainer(config *Config) llm.Explainer {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = config.LLM.APIKey
	}
	if apiKey == "" {
		zap.S().Warn("no OpenAI API key configured, predictions will not be explained")
		return nil
	}

	client := llm.NewOpenAIExplainer(apiKey, config.LLM.Model,
		time.Duration(config.LLM.TimeoutSeconds)*time.Second, config.LLM.MaxTokens)
	cached, err := llm.NewCachedExplainer(client, config.LLM.CacheSize)
	if err != nil {
		zap.S().Warnw("explanation cache unavailable, calling API directly", "error", err)
		return client
	}
	return cached
}
