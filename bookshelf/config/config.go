package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/Astemirdum/bookshelf-service/pkg/tracing"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"BOOKSHELF_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"BOOKSHELF_HTTP_PORT" default:"5000"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"15s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE"`
}

type Config struct {
	Server       HTTPServer     `yaml:"server"`
	Database     postgres.DB    `yaml:"db"`
	Log          logger.Log     `yaml:"log"`
	Trace        tracing.Config `yaml:"trace"`
	StrictStatus bool           `yaml:"strictStatus" envconfig:"BOOKSHELF_STRICT_STATUS"`
	RPS          float64        `yaml:"rps" envconfig:"BOOKSHELF_RPS"`
	Swagger      bool           `yaml:"swagger" envconfig:"BOOKSHELF_SWAGGER"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment. Options set values that the
// environment may still override.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		if err := envconfig.Process("", &config); err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = &config
		printConfig(cfg)
	})

	return cfg
}

func printConfig(cfg *Config) {
	redacted := *cfg
	redacted.Database.Password = "***"
	jscfg, _ := json.MarshalIndent(redacted, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
