package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Configuration & Job-file errors
// 12000-12999: Shared metrics region errors
// 13000-13999: Worker lifecycle errors
// 14000-14999: Termination & Supervision errors
// 15000-15999: Capability & Fault-probe errors
// 16000-16999: Stressor & Payload errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalError      ErrorCode = 10001
	InvalidParams      ErrorCode = 10002
	NotFound           ErrorCode = 10003
	Timeout            ErrorCode = 10004
	ServiceUnavailable ErrorCode = 10005

	// Resource exhaustion (10100-10199)
	ResourceExhausted ErrorCode = 10100
	RetriesExhausted  ErrorCode = 10101

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Configuration & Job Errors (11000-11999) ==========

	ConfigLoadFailed ErrorCode = 11000
	ConfigInvalid    ErrorCode = 11001
	JobFileNotFound  ErrorCode = 11002
	JobFileInvalid   ErrorCode = 11003
	HelperNotFound   ErrorCode = 11004

	// ========== Shared Metrics Region Errors (12000-12999) ==========

	RegionAllocFailed     ErrorCode = 12000
	RegionMapFailed       ErrorCode = 12001
	RegionCorrupt         ErrorCode = 12002
	RegionVersionMismatch ErrorCode = 12003
	MetricTableFull       ErrorCode = 12100
	MetricLabelTooLong    ErrorCode = 12101
	WorkerIndexOutOfRange ErrorCode = 12102

	// ========== Worker Lifecycle Errors (13000-13999) ==========

	SpawnFailed           ErrorCode = 13000
	SpawnRetriesExhausted ErrorCode = 13001
	BarrierTimeout        ErrorCode = 13100
	WorkerLost            ErrorCode = 13101
	AffinityFailed        ErrorCode = 13200
	CgroupSetupFailed     ErrorCode = 13201

	// ========== Termination & Supervision Errors (14000-14999) ==========

	OomKilled            ErrorCode = 14000
	OomRestartExhausted  ErrorCode = 14001
	KilledBySignal       ErrorCode = 14100
	DeadlineExceeded     ErrorCode = 14101
	ShutdownGraceExpired ErrorCode = 14102

	// ========== Capability & Fault-Probe Errors (15000-15999) ==========

	CapabilityUnsupported ErrorCode = 15000
	MethodDisabled        ErrorCode = 15100
	ProbeTrapped          ErrorCode = 15101
	ProbeHung             ErrorCode = 15102
	FallbackDisabled      ErrorCode = 15103

	// ========== Stressor & Payload Errors (16000-16999) ==========

	StressorNotFound      ErrorCode = 16000
	StressorUnimplemented ErrorCode = 16001
	OptionUnknown         ErrorCode = 16100
	OptionInvalid         ErrorCode = 16101
	OptionOutOfRange      ErrorCode = 16102
	VerificationFailure   ErrorCode = 16200
	PayloadSetupFailed    ErrorCode = 16201
)

// errorMessages maps error codes to default human-readable messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:            "Success",
	InternalError:      "Internal error",
	InvalidParams:      "Invalid parameters",
	NotFound:           "Not found",
	Timeout:            "Operation timed out",
	ServiceUnavailable: "Service unavailable",

	// Resource exhaustion
	ResourceExhausted: "Resource temporarily exhausted",
	RetriesExhausted:  "Retries exhausted",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Configuration & Job
	ConfigLoadFailed: "Failed to load configuration",
	ConfigInvalid:    "Invalid configuration",
	JobFileNotFound:  "Job file not found",
	JobFileInvalid:   "Invalid job file",
	HelperNotFound:   "Worker helper binary not found",

	// Shared metrics region
	RegionAllocFailed:     "Failed to allocate shared metrics region",
	RegionMapFailed:       "Failed to map shared metrics region",
	RegionCorrupt:         "Shared metrics region is corrupt",
	RegionVersionMismatch: "Shared metrics region version mismatch",
	MetricTableFull:       "Metric slot table is full",
	MetricLabelTooLong:    "Metric label is too long",
	WorkerIndexOutOfRange: "Worker index out of range",

	// Worker lifecycle
	SpawnFailed:           "Failed to spawn worker",
	SpawnRetriesExhausted: "Worker spawn retries exhausted",
	BarrierTimeout:        "Startup barrier timed out",
	WorkerLost:            "Worker process lost",
	AffinityFailed:        "Failed to set CPU affinity",
	CgroupSetupFailed:     "Failed to set up worker cgroup",

	// Termination & Supervision
	OomKilled:            "Worker was OOM-killed",
	OomRestartExhausted:  "OOM-kill restart ceiling reached",
	KilledBySignal:       "Worker was killed by signal",
	DeadlineExceeded:     "Run deadline exceeded",
	ShutdownGraceExpired: "Worker did not stop within grace period",

	// Capability & Fault-probe
	CapabilityUnsupported: "Capability not supported on this host",
	MethodDisabled:        "Method has been disabled",
	ProbeTrapped:          "Probe trapped a hardware fault",
	ProbeHung:             "Probe did not complete within the watchdog bound",
	FallbackDisabled:      "Fallback method is disabled",

	// Stressor & Payload
	StressorNotFound:      "Stressor not found",
	StressorUnimplemented: "Stressor is not implemented on this platform",
	OptionUnknown:         "Unknown stressor option",
	OptionInvalid:         "Invalid stressor option",
	OptionOutOfRange:      "Stressor option out of range",
	VerificationFailure:   "Payload verification failed",
	PayloadSetupFailed:    "Payload setup failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Process exit codes reported by the orchestrator and by workers.
const (
	ExitSuccess             = 0
	ExitEngineFailure       = 1
	ExitResourceUnavailable = 2
	ExitVerificationFailure = 3
	ExitUnimplemented       = 4
)

// ExitStatus returns the recommended process exit code for the error code.
func (c ErrorCode) ExitStatus() int {
	switch {
	case c == Success:
		return ExitSuccess
	case c == ResourceExhausted, c == RetriesExhausted, c == SpawnRetriesExhausted,
		c == RegionAllocFailed, c == RegionMapFailed, c == OomRestartExhausted,
		c == FallbackDisabled, c == CapabilityUnsupported:
		return ExitResourceUnavailable
	case c == VerificationFailure:
		return ExitVerificationFailure
	case c == StressorUnimplemented:
		return ExitUnimplemented
	default:
		return ExitEngineFailure
	}
}
