// Package main is the hoopbot controller entrypoint.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.viam.com/utils"

	"go.viam.com/hoopbot/logging"
)

var logger = logging.NewLogger("entrypoint")

func main() {
	utils.ContextualMain(mainWithArgs, logger.AsZap())
}

func mainWithArgs(ctx context.Context, args []string, _ *zap.SugaredLogger) error {
	return newApp(os.Stdout).RunContext(ctx, args)
}
