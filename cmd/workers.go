package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/kozaktomas/worker-attendance/internal/constants"
	"github.com/kozaktomas/worker-attendance/internal/registry"
	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Worker registry commands",
	Long:  `Commands for listing, registering, editing and deleting workers.`,
}

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workers",
	RunE:  runWorkersList,
}

var workersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new worker",
	Long: `Register a worker with one or more reference photos.

Photos come from image files (--image, repeatable) and/or a still taken from
the camera (--camera).

Example:
  attendance workers add --name "Sita Devi" --phone 9876543210 --village Rampur \
    --salary 450 --image sita1.jpg --camera`,
	RunE: runWorkersAdd,
}

var workersEditCmd = &cobra.Command{
	Use:   "edit <worker-id>",
	Short: "Edit a worker",
	Long: `Change a worker's details or reference photos. Only the given flags are changed.

Example:
  attendance workers edit 64f1c2 --salary 500 --camera`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkersEdit,
}

var workersDeleteCmd = &cobra.Command{
	Use:   "delete <worker-id>",
	Short: "Delete a worker",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkersDelete,
}

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.AddCommand(workersListCmd, workersAddCmd, workersEditCmd, workersDeleteCmd)

	workersListCmd.Flags().String("query", "", "Filter by name, village or phone")
	workersListCmd.Flags().Bool("json", false, "Output as JSON")

	workersAddCmd.Flags().String("name", "", "Worker name")
	workersAddCmd.Flags().String("phone", "", "Phone number")
	workersAddCmd.Flags().String("village", "", "Village")
	workersAddCmd.Flags().Int("salary", 0, "Per-day salary")
	workersAddCmd.Flags().StringSlice("image", nil, "Reference photo file (repeatable)")
	workersAddCmd.Flags().Bool("camera", false, "Take a reference photo from the camera")
	workersAddCmd.Flags().Int("device", 0, "Camera index for --camera")

	workersEditCmd.Flags().String("name", "", "New name")
	workersEditCmd.Flags().String("phone", "", "New phone number")
	workersEditCmd.Flags().String("village", "", "New village")
	workersEditCmd.Flags().Float64("salary", 0, "New per-day salary")
	workersEditCmd.Flags().StringSlice("image", nil, "Add a reference photo file (repeatable)")
	workersEditCmd.Flags().StringSlice("remove-image", nil, "Remove a reference photo by URL (repeatable)")
	workersEditCmd.Flags().Bool("camera", false, "Add a reference photo from the camera")
	workersEditCmd.Flags().Int("device", 0, "Camera index for --camera")

	workersDeleteCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runWorkersList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	workers, err := a.registry().Search(context.Background(), mustGetString(cmd, "query"))
	if err != nil {
		return fmt.Errorf("failed to list workers: %w", err)
	}

	if mustGetBool(cmd, "json") {
		if workers == nil {
			workers = []backend.Worker{}
		}
		return outputJSON(workers)
	}

	if len(workers) == 0 {
		fmt.Println("No workers found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPHONE\tVILLAGE\tSALARY/DAY\tPHOTOS\tDAYS")
	fmt.Fprintln(w, "--\t----\t-----\t-------\t----------\t------\t----")
	for i := range workers {
		wk := &workers[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%d\t%d\n",
			wk.ID, wk.Name, wk.Phone, wk.Village, wk.PerDaySalary, len(wk.Images), len(wk.Attendance))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d workers\n", len(workers))
	return nil
}

// collectFrames reads the --image files and, with --camera, takes one still from the camera.
func collectFrames(ctx context.Context, cmd *cobra.Command, a *app) ([]*capture.Frame, error) {
	var frames []*capture.Frame
	for _, path := range mustGetStringSlice(cmd, "image") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		frame, err := capture.FromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		frames = append(frames, frame)
	}

	if mustGetBool(cmd, "camera") {
		device, err := deviceFlag(cmd)
		if err != nil {
			return nil, err
		}
		frame, err := captureStill(ctx, a, device)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	if len(frames) > constants.MaxEnrollImages {
		return nil, fmt.Errorf("at most %d photos can be added at once, got %d", constants.MaxEnrollImages, len(frames))
	}
	return frames, nil
}

// captureStill starts the camera, takes one frame and stops the camera again.
func captureStill(ctx context.Context, a *app, device int) (*capture.Frame, error) {
	a.camera.EnumerateDevices(ctx)
	if err := a.camera.Start(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to start camera: %w", err)
	}
	defer a.camera.Stop()

	frame, err := capture.Capture(a.camera)
	if err != nil {
		return nil, fmt.Errorf("failed to capture photo: %w", err)
	}
	fmt.Printf("Captured %dx%d photo from camera %d\n", frame.Width(), frame.Height(), device)
	return frame, nil
}

func runWorkersAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	frames, err := collectFrames(ctx, cmd, a)
	if err != nil {
		return err
	}

	form := registry.Form{
		Name:    mustGetString(cmd, "name"),
		Phone:   mustGetString(cmd, "phone"),
		Village: mustGetString(cmd, "village"),
		Salary:  mustGetInt(cmd, "salary"),
	}

	fmt.Printf("Registering %s with %d photo(s)...\n", form.Name, len(frames))
	worker, err := a.registry().Register(ctx, form, frames)
	if err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}

	fmt.Printf("Done! Registered %s (ID: %s)\n", worker.Name, worker.ID)
	return nil
}

func runWorkersEdit(cmd *cobra.Command, args []string) error {
	id := backend.WorkerID(args[0])

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()
	reg := a.registry()

	frames, err := collectFrames(ctx, cmd, a)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	remove := mustGetStringSlice(cmd, "remove-image")
	changed := flags.Changed("name") || flags.Changed("phone") || flags.Changed("village") ||
		flags.Changed("salary") || len(remove) > 0
	if !changed && len(frames) == 0 {
		return fmt.Errorf("nothing to change, see --help")
	}

	var worker *backend.Worker
	if changed {
		worker, err = reg.Edit(ctx, id, func(u *backend.WorkerUpdate) {
			if flags.Changed("name") {
				u.Name = mustGetString(cmd, "name")
			}
			if flags.Changed("phone") {
				u.Phone = mustGetString(cmd, "phone")
			}
			if flags.Changed("village") {
				u.Village = mustGetString(cmd, "village")
			}
			if flags.Changed("salary") {
				u.PerDaySalary = mustGetFloat64(cmd, "salary")
			}
			u.Images = slices.DeleteFunc(u.Images, func(img string) bool {
				return slices.Contains(remove, img)
			})
		})
		if err != nil {
			return fmt.Errorf("failed to update worker: %w", err)
		}
	}
	if len(frames) > 0 {
		fmt.Printf("Uploading %d photo(s)...\n", len(frames))
		worker, err = reg.AddPhotos(ctx, id, frames)
		if err != nil {
			return fmt.Errorf("failed to add photos: %w", err)
		}
	}

	fmt.Printf("Done! %s now has %d reference photo(s)\n", worker.Name, len(worker.Images))
	return nil
}

func runWorkersDelete(cmd *cobra.Command, args []string) error {
	id := backend.WorkerID(args[0])

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := context.Background()

	worker, err := a.client.GetWorker(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get worker: %w", err)
	}
	fmt.Printf("Worker: %s (%s, %s)\n", worker.Name, worker.Village, worker.Phone)

	if !mustGetBool(cmd, "yes") && !confirmAction("\nDelete this worker and their attendance history? [y/N]: ") {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := a.registry().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete worker: %w", err)
	}
	fmt.Printf("Done! Deleted %s\n", worker.Name)
	return nil
}
