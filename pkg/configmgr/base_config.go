package configmgr

import "time"

// Config - config interface.
type Config interface {
	GetServiceName() string
	GetVersion() string
	GetEnvironment() string
	GetServerConfig() *ServerConfig
	GetLoggingConfig() *LoggingConfig
	GetGraphConfig() *GraphConfig
	IsLocalEnvironment() bool
}

// Transport names accepted in graph.transport.
const (
	TransportSession  = "session"
	TransportResource = "resource"
)

// BaseConfig - app config struct.
// This struct represents the base configuration for the application and is expected to be in the following YAML format:
/*
name: "TestApp"
environment: "development"
version: "1.0"
logging:
  level: "debug"
server:
  port: "8080"
  concurrency: 10
  disableStartupMsg: false
graph:
  transport: "session"
  database: "neo4j"
  bolt:
    uri: "neo4j://localhost:7687"
    username: "neo4j"
    password: "secret"
  http:
    baseUrl: "http://localhost:7474"
    username: "neo4j"
    password: "secret"
    timeout: 30s
  defaultHeaders:
    X-Client: "go-graph-tx"
*/
type BaseConfig struct {
	Name        string         `mapstructure:"name"`
	Environment string         `mapstructure:"environment"`
	Version     string         `mapstructure:"version"`
	Logging     *LoggingConfig `mapstructure:"logging"`
	Server      *ServerConfig  `mapstructure:"server"`
	Graph       *GraphConfig   `mapstructure:"graph"`
}

type ServerConfig struct {
	Port                  string `mapstructure:"port"`
	Concurrency           int    `mapstructure:"concurrency"`
	DisableStartupMessage bool   `mapstructure:"disableStartupMsg"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// GraphConfig - selects the transport (once, process wide) and how to reach the database.
type GraphConfig struct {
	Transport      string            `mapstructure:"transport" validate:"required,oneof=session resource"`
	Database       string            `mapstructure:"database" validate:"required"`
	Bolt           *BoltConfig       `mapstructure:"bolt" validate:"required_if=Transport session"`
	Http           *HttpConfig       `mapstructure:"http" validate:"required_if=Transport resource"`
	DefaultHeaders map[string]string `mapstructure:"defaultHeaders"`
}

// BoltConfig - session-backed transport endpoint.
type BoltConfig struct {
	Uri      string `mapstructure:"uri" validate:"required,uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// HttpConfig - resource-backed transport endpoint.
type HttpConfig struct {
	BaseUrl  string        `mapstructure:"baseUrl" validate:"required,url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (cfg BaseConfig) GetServiceName() string {
	return cfg.Name
}

func (cfg BaseConfig) GetVersion() string {
	return cfg.Version
}

func (cfg BaseConfig) GetEnvironment() string {
	return cfg.Environment
}

func (cfg BaseConfig) IsLocalEnvironment() bool {
	return checkIfLocalEnv(cfg.Environment)
}

func (cfg BaseConfig) GetServerConfig() *ServerConfig {
	return cfg.Server
}

func (cfg BaseConfig) GetLoggingConfig() *LoggingConfig {
	if cfg.Logging == nil {
		return &LoggingConfig{Level: "info"}
	}

	return cfg.Logging
}

func (cfg BaseConfig) GetGraphConfig() *GraphConfig {
	return cfg.Graph
}
