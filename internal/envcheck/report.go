package envcheck

// Status is the outcome of one line or one check
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusFailed
	StatusSkipped
	StatusInfo
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Line is one printed finding
type Line struct {
	Status  Status
	Message string
}

// Check groups the findings of one named check
type Check struct {
	Name   string
	Status Status
	Lines  []Line
}

func (c *Check) add(status Status, msg string) {
	c.Lines = append(c.Lines, Line{Status: status, Message: msg})
}

// Report is the result of a full validation run
type Report struct {
	Checks []Check
}

// Passed reports whether no check failed
func (r Report) Passed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFailed {
			return false
		}
	}
	return true
}
