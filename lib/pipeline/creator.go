// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/shipyard/lib/config"
	"github.com/bureau-foundation/shipyard/lib/github"
	"github.com/bureau-foundation/shipyard/lib/publisher"
	"github.com/bureau-foundation/shipyard/lib/tool"
	"github.com/bureau-foundation/shipyard/lib/version"
)

// NewCreator selects the repository creator for cfg. The auto setting
// uses the REST API when a token is present in the environment and the
// gh CLI otherwise.
func NewCreator(cfg config.PublishConfig, runner tool.Runner, logger *slog.Logger) (publisher.Creator, error) {
	token := cfg.Token()
	switch cfg.Creator {
	case config.CreatorGH:
		return &publisher.GHCreator{Runner: runner}, nil
	case config.CreatorAPI:
		if token == "" {
			return nil, fmt.Errorf("publish.creator is api but $%s is not set", cfg.TokenEnv)
		}
		return apiCreator(cfg, token, logger)
	default:
		if token != "" {
			return apiCreator(cfg, token, logger)
		}
		return &publisher.GHCreator{Runner: runner}, nil
	}
}

func apiCreator(cfg config.PublishConfig, token string, logger *slog.Logger) (publisher.Creator, error) {
	client, err := github.NewClient(github.Config{
		BaseURL:   cfg.APIURL,
		Token:     token,
		UserAgent: version.UserAgent(),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &publisher.APICreator{Client: client}, nil
}
