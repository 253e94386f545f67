package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	Version = "0.4.0"
)

func showBanner() {
	greenColor := color.New(color.FgGreen, color.Bold)

	banner := []string{
		"╔══════════════════════════════════════════════╗",
		"║   ██████╗  █████╗ ████████╗ █████╗          ║",
		"║   ██╔══██╗██╔══██╗╚══██╔══╝██╔══██╗         ║",
		"║   ██║  ██║███████║   ██║   ███████║  GEN    ║",
		"║   ██║  ██║██╔══██║   ██║   ██╔══██║         ║",
		"║   ██████╔╝██║  ██║   ██║   ██║  ██║         ║",
		"║   ╚═════╝ ╚═╝  ╚═╝   ╚═╝   ╚═╝  ╚═╝         ║",
		"║                                              ║",
		"║      🌱 Scheduled test data for SQL & Kafka  ║",
		"╚══════════════════════════════════════════════╝",
	}

	for _, line := range banner {
		greenColor.Println(line)
	}

	fmt.Print("              ")
	color.New(color.FgCyan, color.Bold).Print("Version: ")
	color.New(color.FgYellow, color.Bold).Printf("%s\n", Version)
}

var rootCmd = &cobra.Command{
	Use:   "datagen",
	Short: "Generate constraint-aware test data on a schedule",
	Long: `
datagen fills relational tables and Kafka topics with synthetic rows
described by JSON templates. Tables are written in foreign key order,
rejected rows are repaired and retried, and every run is recorded.

Targets:
- MySQL
- PostgreSQL (pgx or lib/pq)
- SQLite
- Kafka topics (JSON messages)`,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			logger.SetVerbose(true)
		}
	},

	Run: func(cmd *cobra.Command, args []string) {
		showVersion, _ := cmd.Flags().GetBool("version")
		if showVersion {
			fmt.Printf("datagen version %s\n", Version)
			os.Exit(0)
		}

		if len(args) == 0 {
			showBanner()
			fmt.Println()
			cmd.Help()
		}
	},
}

func Execute() error {
	RegisterBaseCommands()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./datagen.config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Print debug output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.Flags().BoolP("version", "v", false, "Show CLI version")
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		godotenv.Load(".env")
		godotenv.Load(".env.local")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("datagen.config")
	}

	viper.SetEnvPrefix("DATAGEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debug("Using config file: %s", viper.ConfigFileUsed())
	}
}
