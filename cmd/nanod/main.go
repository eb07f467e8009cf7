// Command nanod runs the proof-of-work pool, the bootstrap orchestrator,
// and the peer exclusion registry as one long-lived process. The
// confirmation-height cementer (component G) is a library meant to be
// wired against a real ledger storage engine's BlockReader by an
// embedding application (spec.md §1: the ledger engine itself is out of
// scope), so this entrypoint constructs everything except that.
//
// Flag and command wiring follows the teacher's cmd/berith/config.go
// shape (a GlobalString config flag, a dumpconfig subcommand), adapted
// from TOML to the JSON config package/config.go defines.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/nanod-io/nanod/bootstrap"
	"github.com/nanod-io/nanod/config"
	"github.com/nanod-io/nanod/log"
	"github.com/nanod-io/nanod/peers"
	"github.com/nanod-io/nanod/store"
	"github.com/nanod-io/nanod/work"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "JSON configuration file",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory",
		Value: "./nanod-data",
	}

	dumpConfigCommand = cli.Command{
		Action: dumpConfig,
		Name:   "dumpconfig",
		Usage:  "Show configuration values",
		Flags:  []cli.Flag{configFileFlag},
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "nanod"
	app.Usage = "work pool, bootstrap orchestrator, and peer exclusion registry"
	app.Flags = []cli.Flag{configFileFlag, dataDirFlag}
	app.Commands = []cli.Command{dumpConfigCommand}
	app.Action = runNode

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	if path := ctx.GlobalString(configFileFlag.Name); path != "" {
		cfg, _, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		return *cfg, nil
	}
	cfg := config.Default()
	if dir := ctx.GlobalString(dataDirFlag.Name); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("nanod: marshal config: %w", err)
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

func runNode(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	logger := log.Root().Named("nanod")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("nanod: create data dir %s: %w", cfg.DataDir, err)
	}
	s, err := store.OpenLevelStore(filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		return fmt.Errorf("nanod: open store: %w", err)
	}
	defer s.Close()

	threads := cfg.Work.NumThreads
	if threads == 0 && !cfg.Work.TestMode {
		threads = runtime.NumCPU()
	} else if cfg.Work.TestMode {
		threads = 1
	}
	pool := work.NewPool(work.WithThreads(threads))
	pool.Start()
	defer pool.Stop()

	registry := peers.NewRegistry(
		cfg.Network.ExclusionScoreLimit,
		cfg.Network.ExclusionBaseDuration,
		cfg.Network.ExclusionRemoveDuration,
		cfg.Network.ExclusionMaxSize,
	)
	_ = registry

	initiator := bootstrap.NewInitiator(nil)
	initiator.Start()
	defer initiator.Stop()

	logger.Info("nanod started",
		"datadir", cfg.DataDir,
		"work_threads", threads,
		"test_mode", cfg.Work.TestMode,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("nanod shutting down")
	return nil
}
