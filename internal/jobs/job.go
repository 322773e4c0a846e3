package jobs

// Transform is a named encoding recipe stored on the service.
type Transform struct {
	Name        string
	Description string
}

// Input references an asset consumed by a job. Overlay inputs carry the
// label the transform's overlay filter points at; the primary input has none.
type Input struct {
	AssetName string
	Label     string
}

// Job is the locally observed view of a submitted encoding job.
type Job struct {
	Name            string
	State           State
	Outputs         []Output
	CorrelationData map[string]string
}

// Output is the per-output sub-status of a job.
type Output struct {
	AssetName string
	State     State
	Progress  int
	Error     *Error
}

// Error describes why an output failed.
type Error struct {
	Code    string
	Message string
	Details []ErrorDetail
}

type ErrorDetail struct {
	Code    string
	Message string
}

// FailureReport returns the first output's error message and the message of
// that error's first detail. Missing pieces come back empty.
func (j Job) FailureReport() (message, detail string) {
	if len(j.Outputs) == 0 || j.Outputs[0].Error == nil {
		return "", ""
	}
	e := j.Outputs[0].Error
	message = e.Message
	if len(e.Details) > 0 {
		detail = e.Details[0].Message
	}
	return message, detail
}
