package protocol

// Device error names, carried verbatim in a response frame's "error" field
// and re-raised to the caller by the driver.
const (
	ErrInvalidPin          = "INVALID_PIN"
	ErrInvalidOutputPin    = "INVALID_OUTPUT_PIN"
	ErrInvalidInputPin     = "INVALID_INPUT_PIN"
	ErrInvalidOutputLevel  = "INVALID_OUTPUT_LEVEL"
	ErrInvalidPinMode      = "INVALID_PIN_MODE"
	ErrInvalidCommand      = "INVALID_COMMAND"
	ErrDuplicateLoggingJob = "DUPLICATE_LOGGING_JOB"
	ErrTooManyLoggingJobs  = "TOO_MANY_LOGGING_JOBS"
	ErrLoggingJobNotFound  = "LOGGING_REQUEST_NOT_FOUND"
)

// MaxLoggingJobs is the device's cap on simultaneous logging subscriptions.
const MaxLoggingJobs = 8
