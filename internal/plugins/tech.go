package plugins

import (
	"github.com/joshp123/techhome/internal/config"
	"github.com/joshp123/techhome/internal/core"
	"github.com/joshp123/techhome/plugins/tech"
	"go.uber.org/zap"
)

func init() {
	Register(func(cfg *config.Config, logger *zap.Logger) (core.Plugin, bool) {
		return tech.NewPlugin(cfg.Tech, cfg.MQTT, logger.Named("tech"))
	})
}
