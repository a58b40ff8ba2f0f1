package querygen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the QueryGen engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.querygen/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "querygen".
	DBName string `json:"db_name" yaml:"db_name" mapstructure:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.querygen/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir" mapstructure:"storage_dir"`

	// Chat is the model that writes extraction text in Generate.
	Chat LLMConfig `json:"chat" yaml:"chat" mapstructure:"chat"`

	// ReferenceDate pins "today" (YYYY-MM-DD). Empty means the UTC date at
	// engine construction; either way it is fixed for the engine's lifetime.
	ReferenceDate string `json:"reference_date" yaml:"reference_date" mapstructure:"reference_date"`

	// OntologyPath is imported at startup when the store holds no
	// vocabulary (RDF/XML, XLSX or YAML).
	OntologyPath string `json:"ontology_path" yaml:"ontology_path" mapstructure:"ontology_path"`

	// Extraction
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRounds   int     `json:"max_rounds" yaml:"max_rounds" mapstructure:"max_rounds"`

	// LogQueries appends every resolution to the query_log table.
	LogQueries bool `json:"log_queries" yaml:"log_queries" mapstructure:"log_queries"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string        `json:"provider" yaml:"provider" mapstructure:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string        `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL  string        `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	APIKey   string        `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.querygen/querygen.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "querygen",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		MaxTokens:  512,
		MaxRounds:  3,
		LogQueries: true,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "querygen"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".querygen", name+".db")
	}
}

// LoadConfig reads configuration from path (yaml, json or toml) layered over
// DefaultConfig. An empty path looks for querygen.{yaml,json,toml} in the
// working directory and ~/.querygen, and tolerates none being found.
//
// Environment variables use the prefix "QUERYGEN" with dots replaced by
// underscores, so "chat.api_key" is read from QUERYGEN_CHAT_API_KEY.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("querygen")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".querygen"))
		}
	}
	v.SetEnvPrefix("QUERYGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, v.ConfigFileUsed(), err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
