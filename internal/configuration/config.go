package configuration

import (
	"encoding/json"
	"os"
	"strconv"
)

type MongoConfig struct {
	Uri                 string `json:"uri"`
	Database            string `json:"database"`
	MessagesCollection  string `json:"messagesCollection"`
	SummariesCollection string `json:"summariesCollection"`
	StoresCollection    string `json:"storesCollection"`
	CountersCollection  string `json:"countersCollection"`
	SocketRoute         string `json:"socketRoute"`
}

type RedisConfig struct {
	Url string `json:"url"`
}

type AuthConfig struct {
	Secret string `json:"secret"`
}

type ServerConfig struct {
	AppPort    int `json:"app_port"`
	SocketPort int `json:"socket_port"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Redis        RedisConfig  `json:"redis"`
	Auth         AuthConfig   `json:"auth"`
	Server       ServerConfig `json:"server"`
}

func LoadConfig(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	return &config, nil
}

// applyEnvOverrides lets deployment environments override the checked-in
// config file without editing it.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.ChatDatabase.Uri = v
	}
	if v := os.Getenv("MONGO_DATABASE"); v != "" {
		c.ChatDatabase.Database = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.Url = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("APP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.AppPort = port
		}
	}
	if v := os.Getenv("SOCKET_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.SocketPort = port
		}
	}
}

func (c *Config) applyDefaults() {
	if c.ChatDatabase.MessagesCollection == "" {
		c.ChatDatabase.MessagesCollection = "messages"
	}
	if c.ChatDatabase.SummariesCollection == "" {
		c.ChatDatabase.SummariesCollection = "conversation_summaries"
	}
	if c.ChatDatabase.StoresCollection == "" {
		c.ChatDatabase.StoresCollection = "stores"
	}
	if c.ChatDatabase.CountersCollection == "" {
		c.ChatDatabase.CountersCollection = "counters"
	}
	if c.ChatDatabase.SocketRoute == "" {
		c.ChatDatabase.SocketRoute = "ws"
	}
}
