package db

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix 环境变量前缀，例如 RELGRAPH_DB_DRIVER -> db.driver
const DefaultEnvPrefix = "RELGRAPH_"

// LoadConfig 依次加载默认值、YAML 文件（可选）与环境变量，返回 "db" 节点下的配置。
//
// 优先级：环境变量 > 文件 > 默认值。path 为空或文件不存在时跳过文件层。
func LoadConfig(path, envPrefix string) (DBConfig, error) {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"db.driver":         "sqlite",
		"db.database":       ":memory:",
		"db.max_open_conns": 0,
		"db.max_idle_conns": 0,
	}, "."), nil); err != nil {
		return DBConfig{}, fmt.Errorf("db: failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return DBConfig{}, fmt.Errorf("db: error reading config file %s: %w", path, err)
			}
		}
	}

	// RELGRAPH_DB_MAX_OPEN_CONNS -> db.max_open_conns
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if rest, ok := strings.CutPrefix(key, "db_"); ok {
			return "db." + rest
		}
		return key
	}), nil); err != nil {
		return DBConfig{}, fmt.Errorf("db: failed to load env vars: %w", err)
	}

	var cfg DBConfig
	if err := k.Unmarshal("db", &cfg); err != nil {
		return DBConfig{}, fmt.Errorf("db: unable to decode config: %w", err)
	}
	return cfg, nil
}
