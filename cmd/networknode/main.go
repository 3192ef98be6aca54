// Command networknode runs a single OpenAgents network node: the gRPC
// and HTTP transports, the event gateway, the mod pipeline, and the
// workspace store, wired together by internal/node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openagents/network/internal/auth"
	"github.com/openagents/network/internal/config"
	"github.com/openagents/network/internal/node"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "networknode",
	Short: "Run and administer an OpenAgents network node",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configHashCmd)

	serveCmd.Flags().String("config", "", "path to the network config file (required)")
	serveCmd.Flags().Bool("insecure-allow-disabled-auth", false, "honor disable_agent_secret_verification in the config file (testing only, never use in production)")
	serveCmd.MarkFlagRequired("config")

	configValidateCmd.Flags().String("config", "", "path to the network config file (required)")
	configValidateCmd.MarkFlagRequired("config")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the network node and serve until terminated",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		allowInsecureAuth, _ := cmd.Flags().GetBool("insecure-allow-disabled-auth")

		cfg, err := config.LoadNetworkConfig(configPath)
		if err != nil {
			os.Exit(node.ExitConfigError)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		n, err := node.New(ctx, cfg, allowInsecureAuth)
		if err != nil {
			os.Exit(node.ExitCode(err))
		}

		startErr := n.Start(ctx)

		shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
		defer shutdownCancel()
		if err := n.Stop(shutdownCtx); err != nil && startErr == nil {
			startErr = err
		}

		if startErr != nil {
			os.Exit(node.ExitCode(startErr))
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and prepare network config files",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load a network config file and report whether it is valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadNetworkConfig(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("%s: ok (%d transport(s), %d mod(s), %d agent group(s))\n",
			cfg.Name, len(cfg.Transports), len(cfg.Mods), len(cfg.AgentGroups))
		return nil
	},
}

var configHashCmd = &cobra.Command{
	Use:   "hash PASSWORD",
	Short: "Hash a password for use as an agent_groups password_hash value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}
