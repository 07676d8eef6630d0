package providers

import (
	"context"
	"fmt"
	"time"

	clc "github.com/cloudwego/eino-ext/callbacks/cozeloop"
	"github.com/cloudwego/eino/callbacks"
	"github.com/coze-dev/cozeloop-go"
	"github.com/kart-io/logger"
)

// TracingConfig holds CozeLoop credentials
type TracingConfig struct {
	APIToken    string
	WorkspaceID string
	// FlushWait is how long shutdown waits for pending spans
	FlushWait time.Duration
}

// Enabled reports whether both credentials are set
func (c *TracingConfig) Enabled() bool {
	return c.APIToken != "" && c.WorkspaceID != ""
}

// SetupTracing installs a global CozeLoop callback handler for every eino component.
// The returned function flushes and closes the client; it is a no-op when tracing is disabled.
func SetupTracing(ctx context.Context, config *TracingConfig) (func(context.Context), error) {
	if !config.Enabled() {
		return func(context.Context) {}, nil
	}

	client, err := cozeloop.NewClient(
		cozeloop.WithAPIToken(config.APIToken),
		cozeloop.WithWorkspaceID(config.WorkspaceID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozeloop client: %w", err)
	}
	callbacks.AppendGlobalHandlers(clc.NewLoopHandler(client))
	logger.Infow("cozeloop tracing enabled", "workspace", config.WorkspaceID)

	return func(ctx context.Context) {
		if config.FlushWait > 0 {
			time.Sleep(config.FlushWait)
		}
		client.Close(ctx)
	}, nil
}
