package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/multifs-backend/cmd/flags"
	"github.com/ruteri/multifs-backend/httpserver"
	"github.com/ruteri/multifs-backend/interfaces"
	"github.com/ruteri/multifs-backend/meta"
	"github.com/urfave/cli/v2"
)

var cliFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.RootDirFlag,
	flags.ResourcesFileFlag,
	flags.AllowHiddenFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "multifs-backend",
		Usage: "Serve a unified contents API over multiple storage backends",
		Flags: cliFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			rootDir := cCtx.String(flags.RootDirFlag.Name)
			resourcesFile := cCtx.String(flags.ResourcesFileFlag.Name)
			allowHidden := cCtx.Bool(flags.AllowHiddenFlag.Name)

			var defaultSpecs []interfaces.ResourceSpec
			if resourcesFile != "" {
				logger.Info("Loading resource descriptors", "file", resourcesFile)
				data, err := os.ReadFile(resourcesFile)
				if err != nil {
					logger.Error("Failed to read resources file", "err", err)
					return err
				}
				if err := json.Unmarshal(data, &defaultSpecs); err != nil {
					logger.Error("Failed to parse resources file", "err", err)
					return fmt.Errorf("invalid resources file %s: %w", resourcesFile, err)
				}
			}

			manager, err := meta.NewManager(&meta.Config{
				RootDir: rootDir,
				Log:     logger,
			})
			if err != nil {
				logger.Error("Failed to create meta manager", "err", err)
				return err
			}
			defer manager.Close()

			if len(defaultSpecs) > 0 {
				resources, err := manager.Reconfigure(context.Background(), defaultSpecs)
				if err != nil {
					logger.Error("Failed to register configured resources", "err", err)
					return err
				}
				for _, resource := range resources {
					logger.Info("Registered resource",
						"drive", resource.Drive.String(),
						"url", resource.Spec.URL)
				}
			}

			handler := httpserver.NewHandler(&httpserver.HandlerConfig{
				Manager:      manager,
				Log:          logger,
				DefaultSpecs: defaultSpecs,
				AllowHidden:  allowHidden,
			})

			cfg := flags.ConfigureServer(cCtx, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
