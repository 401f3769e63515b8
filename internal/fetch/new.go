package fetch

import (
	"context"
	"depwait/internal/config"
	"fmt"
	"net/http"
)

// New builds the Fetcher selected by cfg.FetchMode.
// Callers should Close the result when it implements io.Closer.
func New(ctx context.Context, cfg *config.Config) (Fetcher, error) {
	switch cfg.FetchMode {
	case config.FetchModeCommand:
		c, err := NewCommand(cfg.FetchCommand)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.FetchModeHTTP:
		h, err := NewHTTP(&http.Client{Timeout: cfg.FetchTimeout}, cfg.FetchURL, cfg.ResultFile, cfg.FetchToken)
		if err != nil {
			return nil, err
		}
		return h, nil
	case config.FetchModeDocker:
		d, err := NewDocker(ctx, cfg.FetchImage, cfg.FetchCommand)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown fetch mode: %q", cfg.FetchMode)
	}
}
