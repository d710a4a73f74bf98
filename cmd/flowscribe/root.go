package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flowscribe",
	Short: "Record and replay guided browser walkthroughs",
	Long: `flowscribe records clicks and navigations on a live Chrome tab as ordered
steps, and replays them later as an on-screen guided overlay. Chrome must be
started with --remote-debugging-port for record, play and serve.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.flowscribe/config.yaml)")
	rootCmd.PersistentFlags().String("chrome-url", "http://localhost:9222", "Chrome remote debugging URL")
	rootCmd.PersistentFlags().String("db", "", "sqlite storage path (empty runs fully in memory)")

	must(viper.BindPFlag("chrome.debug_url", rootCmd.PersistentFlags().Lookup("chrome-url")))
	must(viper.BindPFlag("storage.path", rootCmd.PersistentFlags().Lookup("db")))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".flowscribe"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetDefault("chrome.debug_url", "http://localhost:9222")
	viper.SetDefault("storage.path", "")
	viper.SetDefault("remote.base_url", "")
	viper.SetDefault("remote.token", "")
	viper.SetDefault("serve.addr", ":8700")

	viper.SetEnvPrefix("FLOWSCRIBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file falls back to defaults, flags and env.
	_ = viper.ReadInConfig()
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
