package commands

import (
	"fmt"

	"github.com/coldforge/schnorrauth/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample schnorrauthd configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/schnorrauthd/config.yaml. Use --config to specify a custom
path.

Examples:
  # Initialize with default location
  schnorrauthd init

  # Initialize with custom path
  schnorrauthd init --config /etc/schnorrauthd/config.yaml

  # Force overwrite existing config
  schnorrauthd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		configPath, err = config.InitConfigToPath(configFile, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: schnorrauthd start")
	fmt.Printf("  3. Or specify custom config: schnorrauthd start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random admin API JWT secret has been generated. Replace it with your")
	fmt.Println("  own before enabling the admin API in production.")

	return nil
}
