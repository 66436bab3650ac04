package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/camctl/gigecam/internal/config"
	"github.com/camctl/gigecam/internal/pvapi"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cameras visible on the network",
	Long: `List every camera the discovery engine can see, whether or not it is
configured as an instance.`,
	Example: `  # List cameras in table format (default)
  gigecam list --simulate

  # List cameras in JSON format
  gigecam list --simulate --format json`,
	RunE: runList,
}

var (
	listFormat   string
	listSimulate bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().BoolVar(&listSimulate, "simulate", false, "use simulated cameras instead of real hardware")
}

func runList(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	transport, _, err := buildTransport(cfg, listSimulate)
	if err != nil {
		return err
	}
	if err := transport.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}
	defer transport.Uninitialize()

	cameras := transport.ListCameras()

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cameras)
	case "table":
		return printCameraTable(cameras)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
}

func printCameraTable(cameras []pvapi.CameraInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tNAME\tMODEL\tSERIAL\tADDRESS\tMASTER")
	fmt.Fprintln(w, "--\t----\t-----\t------\t-------\t------")

	for _, c := range cameras {
		master := "No"
		if c.PermittedAccess&pvapi.AccessMaster != 0 {
			master = "Yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.UniqueID, c.CameraName, c.ModelName, c.SerialNumber, c.Address, master)
	}

	return nil
}
