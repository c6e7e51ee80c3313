// internal/environment/environment.go
package environment

import "fmt"

// Environment is one of the two deployment slots a team runs.
type Environment string

const (
	Blue  Environment = "blue"
	Green Environment = "green"
)

// Parse converts a string to an Environment.
func Parse(s string) (Environment, error) {
	switch s {
	case "blue":
		return Blue, nil
	case "green":
		return Green, nil
	default:
		return "", fmt.Errorf("environment: invalid value %q (must be blue or green)", s)
	}
}

// Other returns the opposite slot.
func (e Environment) Other() Environment {
	if e == Blue {
		return Green
	}
	return Blue
}

// Valid reports whether the value is one of the two known slots.
func (e Environment) Valid() bool {
	return e == Blue || e == Green
}

func (e Environment) String() string {
	return string(e)
}
