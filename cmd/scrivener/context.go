package main

import (
	"fmt"

	"scrivener/internal/config"
)

// commandContext carries the persistent flags and lazily resolved
// configuration shared by every subcommand.
type commandContext struct {
	addrFlag   *string
	configFlag *string
	jsonFlag   *bool

	cfg *config.Config
}

func newCommandContext(addrFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{addrFlag: addrFlag, configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

// daemonAddr resolves the daemon address: flag first, then config.
func (c *commandContext) daemonAddr() (string, error) {
	if *c.addrFlag != "" {
		return *c.addrFlag, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.APIBind, nil
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}
