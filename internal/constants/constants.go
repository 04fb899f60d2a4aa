// Package constants provides shared constants used across the codebase.
package constants

// Enrollment constants
const (
	// MaxEnrollImages is the maximum number of reference photos accepted in one registration
	MaxEnrollImages = 5

	// MaxRequestBodyBytes caps JSON request bodies; data URL images make them large
	MaxRequestBodyBytes = 32 << 20
)

// Report constants
const (
	// MaxReportPageSize is the largest summary page a client may request
	MaxReportPageSize = 200

	// ReportPageWindow is the number of page links shown around the current page
	ReportPageWindow = 5
)

// Descriptor cache constants
const (
	// DescriptorSaveInterval is the number of photos processed before saving the descriptor cache
	DescriptorSaveInterval = 50
)
