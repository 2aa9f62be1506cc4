package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quiz-room-service/internal/domain"
)

type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		PublicURL string `yaml:"publicURL"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	AMQP struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"amqp"`
	Questions struct {
		TTL      string `yaml:"ttl"`
		SeedFile string `yaml:"seedFile"`
	} `yaml:"questions"`
	Game struct {
		FinalLevel      int    `yaml:"finalLevel"`
		QuestionSeconds int    `yaml:"questionSeconds"`
		ResultDelay     string `yaml:"resultDelay"`
		HostAutoEnd     *bool  `yaml:"hostAutoEnd"`
	} `yaml:"game"`
	Log struct {
		Level   string `yaml:"level"`
		NoColor bool   `yaml:"noColor"`
	} `yaml:"log"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.PublicURL = "http://localhost:8080"
	cfg.AMQP.Queue = "game_results"
	cfg.Questions.TTL = "10m"
	cfg.Game.FinalLevel = 4
	cfg.Game.QuestionSeconds = 60
	cfg.Game.ResultDelay = "2s"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads YAML config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// HostAutoEnd reports whether the server ends questions when time runs out.
func (c Config) HostAutoEnd() bool {
	return c.Game.HostAutoEnd == nil || *c.Game.HostAutoEnd
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

type questionFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// LoadQuestions reads a question seed file. Orders in the file are ignored;
// questions are appended per level in file order.
func LoadQuestions(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f questionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, q := range f.Questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d in %s: %w", i+1, path, err)
		}
	}
	return f.Questions, nil
}
