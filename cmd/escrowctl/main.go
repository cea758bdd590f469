// escrowctl drives a bonding-curve escrow campaign from the command line:
// it validates activation configs and runs full campaigns in-process
// against an in-memory or bbolt-backed state store.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log zerolog.Logger

func main() {
	root := &cobra.Command{
		Use:   "escrowctl",
		Short: "Bonding-curve fundraising escrow toolkit",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := zerolog.InfoLevel
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = zerolog.DebugLevel
			}
			log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()

			cfgFile, _ := cmd.Flags().GetString("config")
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
				}
			}
			viper.SetEnvPrefix("ESCROW")
			viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
			viper.AutomaticEnv()
			return nil
		},
	}

	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	root.PersistentFlags().String("config", "", "path to a campaign config file (yaml or json)")

	root.AddCommand(newInitArgsCmd())
	root.AddCommand(newActiveArgsCmd())
	root.AddCommand(newSimulateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
