package batchrag

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"batchrag/pkg/config"
)

var cfgFile string
var logLevel string
var cfg *config.Config
var rootCmd = &cobra.Command{
	Use:   "batchrag",
	Short: "batchrag answers questions about The Batch newsletter",
	Long: `batchrag scrapes articles and images from The Batch, indexes them in a
vector store and answers questions about them with retrieval-augmented
generation.`,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Println(config.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/batchrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "", "log at this level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Print the version number")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
}
