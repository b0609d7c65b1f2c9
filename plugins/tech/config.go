package tech

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/techhome/internal/config"
)

const (
	defaultBaseURL        = config.DefaultTechBaseURL
	defaultRequestTimeout = 15 * time.Second
	defaultPollInterval   = 30 * time.Second
)

// Config defines runtime configuration for the Tech client and poller.
type Config struct {
	BaseURL              string
	UserID               string
	Token                string
	ModuleID             string
	PollInterval         time.Duration
	RequestTimeout       time.Duration
	MaxRequestsPerMinute int
	Coalesce             bool
}

func ConfigFromSettings(cfg config.TechConfig) (Config, error) {
	if strings.TrimSpace(cfg.ModuleID) == "" {
		return Config{}, fmt.Errorf("tech moduleId is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return Config{}, fmt.Errorf("tech userId is required")
	}

	token, err := cfg.ResolveToken()
	if err != nil {
		return Config{}, err
	}

	out := Config{
		BaseURL:              strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		UserID:               strings.TrimSpace(cfg.UserID),
		Token:                token,
		ModuleID:             strings.TrimSpace(cfg.ModuleID),
		PollInterval:         time.Duration(cfg.PollIntervalSeconds) * time.Second,
		RequestTimeout:       time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		Coalesce:             !cfg.DisableCoalescing,
	}
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	if out.PollInterval <= 0 {
		out.PollInterval = defaultPollInterval
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = defaultRequestTimeout
	}
	return out, nil
}
