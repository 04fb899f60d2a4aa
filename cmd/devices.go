package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the available cameras",
	Long: `Enumerates the capture devices under CAMERA_DIR and prints their index, label
and facing direction. The index is what --device expects.`,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runDevices(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	caps := a.camera.EnumerateDevices(context.Background())
	if mustGetBool(cmd, "json") {
		return outputJSON(caps)
	}

	if len(caps.Devices) == 0 {
		fmt.Printf("No cameras found in %s\n", a.cfg.Camera.Dir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tID\tLABEL\tFACING")
	fmt.Fprintln(w, "-----\t--\t-----\t------")
	for i, d := range caps.Devices {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, d.ID, d.Label, d.Facing)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d camera(s)", len(caps.Devices))
	if caps.MultipleCameras {
		fmt.Print(", switching supported")
	}
	if caps.FacingModeOnly {
		fmt.Print(", front/rear selection only")
	}
	fmt.Println()
	return nil
}
