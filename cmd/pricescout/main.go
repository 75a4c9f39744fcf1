package main

import (
	"context"
	"log/slog"
	"os"

	"pricescout-backend/cmd/pricescout/commands"
	"pricescout-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()
	telemetry.InitSlog(false)

	tel, err := telemetry.SetupFromEnv(ctx, "pricescout")
	if err != nil {
		slog.Error("failed to set up telemetry", "err", err)
		os.Exit(1)
	}
	defer tel.Shutdown(ctx)

	telemetry.InstrumentPerfStats(ctx)
	commands.ExecuteContext(ctx)
}
