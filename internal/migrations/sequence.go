package migrations

import "embed"

//go:embed steps/*.json
var stepsFS embed.FS

// Sequence returns the built-in migration steps in timestamp order.
func Sequence() ([]Step, error) {
	return LoadSteps(stepsFS, "steps")
}
