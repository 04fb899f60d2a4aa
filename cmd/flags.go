package cmd

import (
	"fmt"

	"github.com/kozaktomas/worker-attendance/internal/report"
	"github.com/spf13/cobra"
)

// mustGet reads a flag defined in init(). A lookup error is a programming bug, so it panics.
func mustGet[T any](name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustGet(name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustGet(name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustGet(name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustGet(name, cmd.Flags().GetFloat64)
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	return mustGet(name, cmd.Flags().GetStringSlice)
}

// deviceFlag returns the --device camera index.
func deviceFlag(cmd *cobra.Command) (int, error) {
	idx := mustGetInt(cmd, "device")
	if idx < 0 {
		return 0, fmt.Errorf("--device must not be negative, got %d", idx)
	}
	return idx, nil
}

// periodFlags returns the validated --month and --year.
func periodFlags(cmd *cobra.Command) (month, year int, err error) {
	month, year = mustGetInt(cmd, "month"), mustGetInt(cmd, "year")
	if err := report.ValidatePeriod(month, year); err != nil {
		return 0, 0, err
	}
	return month, year, nil
}
