package debuginfo

// Reason is the closed set of ShouldInitiateUpload reason strings (spec
// §4.9), kept as a typed enum rather than bare strings — grounded on
// original_source/src/debuginfo_store/reasons.rs, which enumerates these
// as a dedicated type rather than inlining them at each call site.
type Reason string

const (
	ReasonInDebuginfod           Reason = "IN_DEBUGINFOD"
	ReasonFirstTime              Reason = "FIRST_TIME"
	ReasonDebuginfodInvalid      Reason = "DEBUGINFOD_INVALID"
	ReasonDebuginfodSource       Reason = "DEBUGINFOD_SOURCE"
	ReasonUploadStale            Reason = "UPLOAD_STALE"
	ReasonUploadInProgress       Reason = "UPLOAD_IN_PROGRESS"
	ReasonAlreadyExistsButForced Reason = "ALREADY_EXISTS_BUT_FORCED"
	ReasonAlreadyExists          Reason = "ALREADY_EXISTS"
	ReasonDebuginfoInvalid       Reason = "DEBUGINFO_INVALID"
	ReasonEqual                  Reason = "EQUAL"
	ReasonNotEqual               Reason = "NOT_EQUAL"
)
