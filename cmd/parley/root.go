package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:           "parley",
		Short:         "Headless messaging and calling client with a local control API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env != "" {
				if err := os.Setenv("CONFIG_ENV", env); err != nil {
					return err
				}
			}
			return run(cmd.Context(), v)
		},
	}

	cmd.Flags().StringVar(&env, "config-env", "", "config file suffix: config/config.<env>.yaml (overrides CONFIG_ENV)")
	cmd.Flags().Int("port", 0, "local API port")
	cmd.Flags().String("log-level", "", "zerolog level (debug, info, warn, error)")
	bindFlags(v, cmd)
	return cmd
}

// bindFlags lets explicitly set flags win over the file and environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
}
