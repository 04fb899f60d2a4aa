package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/spf13/cobra"
)

var attendCmd = &cobra.Command{
	Use:   "attend",
	Short: "Mark attendance from the camera",
	Long: `Starts the camera, captures a frame, identifies the worker and, after
confirmation, records their attendance. The camera is stopped when the command
ends, including on Ctrl+C.

Example:
  attendance attend --device 1`,
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().Int("device", 0, "Camera index")
	attendCmd.Flags().Bool("yes", false, "Record attendance without asking")
	attendCmd.Flags().Bool("switch", false, "Switch to the next camera before capturing")
}

func runAttend(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.saveCache()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	release := a.camera.Scope(ctx)
	defer release()

	identifier, err := a.identifier()
	if err != nil {
		return fmt.Errorf("failed to create identifier: %w", err)
	}
	flow := attendance.NewFlow(a.camera, identifier, a.client, a.cfg.Camera.MaxUploadDimension, a.log)

	a.camera.EnumerateDevices(ctx)
	device, err := deviceFlag(cmd)
	if err != nil {
		return err
	}
	if err := flow.StartCamera(ctx, device); err != nil {
		return flowError(flow, err)
	}
	if mustGetBool(cmd, "switch") {
		if err := flow.SwitchCamera(ctx); err != nil {
			return flowError(flow, err)
		}
	}
	fmt.Printf("Camera %d started\n", a.camera.CurrentIndex())

	fmt.Println("Capturing and identifying...")
	result, err := flow.CaptureAndIdentify(ctx)
	if err != nil {
		return flowError(flow, err)
	}
	if !result.Matched {
		fmt.Println(result.Message)
		return nil
	}

	worker := result.Worker
	fmt.Printf("Identified: %s (%s)\n", worker.Name, worker.Village)

	if !mustGetBool(cmd, "yes") && !confirmAction(fmt.Sprintf("\nMark attendance for %s? [y/N]: ", worker.Name)) {
		flow.StopCamera()
		fmt.Println("Cancelled.")
		return nil
	}

	if _, err := flow.Confirm(ctx); err != nil {
		return flowError(flow, err)
	}
	fmt.Println(flow.Snapshot().Message)
	return nil
}

// flowError prefers the message the flow shows to the operator over the raw error.
func flowError(flow *attendance.Flow, err error) error {
	if snap := flow.Snapshot(); snap.MessageType == attendance.MessageError && snap.Message != "" {
		return errors.New(snap.Message)
	}
	return err
}
