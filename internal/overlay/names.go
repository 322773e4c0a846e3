package overlay

import "github.com/google/uuid"

const suffixLength = 13

// Names holds the per-run resource names. All of them share one uniqueness
// suffix so repeated runs never collide.
type Names struct {
	Uniqueness string
	Job        string
	Input      string
	Logo       string
	Output     string
}

// NewNames derives a fresh set of names from a random UUID.
func NewNames() Names {
	return NamesFromSuffix(uuid.NewString()[:suffixLength])
}

func NamesFromSuffix(suffix string) Names {
	return Names{
		Uniqueness: suffix,
		Job:        "job-" + suffix,
		Input:      "input-" + suffix,
		Logo:       "logo-" + suffix,
		Output:     "output-" + suffix,
	}
}
