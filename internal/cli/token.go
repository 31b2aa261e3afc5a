package cli

import (
	"fmt"
	"time"

	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/daemon"
)

// Execute implements the go-flags Commander interface for TokenCommand.
func (c *TokenCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.executeWithConfig(cfg)
}

func (c *TokenCommand) executeWithConfig(cfg *config.Config) error {
	ttl, err := parseDuration(c.TTL)
	if err != nil {
		return err
	}
	token, err := daemon.GenerateToken(cfg.Daemon.AuthToken, ttl)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]any{"token": token}
		if ttl > 0 {
			out["expires_at"] = time.Now().Add(ttl).UTC().Format(time.RFC3339)
		}
		return printJSON(out)
	}
	fmt.Println(token)
	return nil
}
