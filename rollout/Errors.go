package rollout

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is wrapped by errors caused by an invalid
	// collection configuration
	ErrConfiguration = errors.New("invalid configuration")

	// ErrPolicyContract is wrapped by errors caused by a policy whose
	// output does not satisfy the contract of the collection mode
	ErrPolicyContract = errors.New("policy output violates contract")
)

// Error records an error and the collection operation that caused it
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfiguration returns whether err was caused by an invalid
// collection configuration
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsPolicyContract returns whether err was caused by a policy whose
// output violates the contract of the collection mode
func IsPolicyContract(err error) bool {
	return errors.Is(err, ErrPolicyContract)
}

func configError(op, format string, args ...interface{}) error {
	return &Error{
		Op:  op,
		Err: fmt.Errorf("%w: "+format, append([]interface{}{ErrConfiguration}, args...)...),
	}
}

func contractError(op, format string, args ...interface{}) error {
	return &Error{
		Op:  op,
		Err: fmt.Errorf("%w: "+format, append([]interface{}{ErrPolicyContract}, args...)...),
	}
}
