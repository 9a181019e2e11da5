package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/compose-network/sequencer/log"
	"github.com/compose-network/sequencer/sequencer-app/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "sequencer",
		Short: "Sequencer",
		Long:  banner + "\n\nA slot-driven rollup sequencer: block assembly, attestations, L1 publication.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

const banner = `
███████╗███████╗ ██████╗ ██╗   ██╗███████╗███╗   ██╗ ██████╗███████╗██████╗
██╔════╝██╔════╝██╔═══██╗██║   ██║██╔════╝████╗  ██║██╔════╝██╔════╝██╔══██╗
███████╗█████╗  ██║   ██║██║   ██║█████╗  ██╔██╗ ██║██║     █████╗  ██████╔╝
╚════██║██╔══╝  ██║▄▄ ██║██║   ██║██╔══╝  ██║╚██╗██║██║     ██╔══╝  ██╔══██╗
███████║███████╗╚██████╔╝╚██████╔╝███████╗██║ ╚████║╚██████╗███████╗██║  ██║
╚══════╝╚══════╝ ╚══▀▀═╝  ╚═════╝ ╚══════╝╚═╝  ╚═══╝ ╚═════╝╚══════╝╚═╝  ╚═╝`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config",
		"sequencer-app/configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// API flags
	rootCmd.PersistentFlags().String("api-listen-addr", "", "admin API listen address")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")

	// Sequencer flags
	rootCmd.PersistentFlags().Duration("polling-interval", 0, "main loop cadence")
	rootCmd.PersistentFlags().Uint64("min-txs-per-block", 0, "minimum txs to build a block")
	rootCmd.PersistentFlags().Uint64("max-txs-per-block", 0, "maximum txs per block")
	rootCmd.PersistentFlags().Bool("enforce-timetable", true, "raise TooSlow on missed phase deadlines")
	rootCmd.PersistentFlags().String("coinbase", "", "L1 coinbase address")
	rootCmd.PersistentFlags().String("fee-recipient", "", "L2 fee recipient address")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "sequencer-app/configs/config.yaml"
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)

	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	logger.Info().
		Str("config_file", cfgFile).
		Str("api_listen_addr", cfg.API.ListenAddr).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Dur("l2_slot_duration", cfg.Sequencer.L2SlotDuration).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("Sequencer\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("api-listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("api-listen-addr")
	}
	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}

	if cmd.Flag("polling-interval").Changed {
		cfg.Sequencer.PollingInterval, _ = cmd.Flags().GetDuration("polling-interval")
	}
	if cmd.Flag("min-txs-per-block").Changed {
		cfg.Sequencer.MinTxsPerBlock, _ = cmd.Flags().GetUint64("min-txs-per-block")
	}
	if cmd.Flag("max-txs-per-block").Changed {
		cfg.Sequencer.MaxTxsPerBlock, _ = cmd.Flags().GetUint64("max-txs-per-block")
	}
	if cmd.Flag("enforce-timetable").Changed {
		cfg.Sequencer.EnforceTimetable, _ = cmd.Flags().GetBool("enforce-timetable")
	}
	if cmd.Flag("coinbase").Changed {
		cfg.Sequencer.Coinbase, _ = cmd.Flags().GetString("coinbase")
	}
	if cmd.Flag("fee-recipient").Changed {
		cfg.Sequencer.FeeRecipient, _ = cmd.Flags().GetString("fee-recipient")
	}
}
