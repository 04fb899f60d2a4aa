package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/kozaktomas/worker-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk web server",
	Long: `Start the attendance kiosk web server.
The server drives the camera and exposes the mark-attendance flow, worker
registration and monthly reports to the kiosk page and the JSON API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (defaults to WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caps := a.camera.EnumerateDevices(ctx)
	fmt.Printf("Found %d camera(s)\n", len(caps.Devices))

	identifier, err := a.identifier()
	if err != nil {
		return fmt.Errorf("failed to create identifier: %w", err)
	}
	fmt.Printf("Identification strategy: %s\n", identifier.Strategy())

	// The camera is released when the server stops, however it stops.
	release := a.camera.Scope(ctx)
	defer release()
	defer a.saveCache()

	flow := attendance.NewFlow(a.camera, identifier, a.client, a.cfg.Camera.MaxUploadDimension, a.log)
	server := web.NewServer(a.cfg, web.Deps{
		Camera:   a.camera,
		Flow:     flow,
		Registry: a.registry(),
		Reports:  a.client,
	}, a.log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting attendance kiosk on http://%s\n", a.cfg.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
