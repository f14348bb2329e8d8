// Package calc implements the arithmetic service fronted by the gateway.
// Operations are grouped into two permission tiers: the four basic
// operations and the advanced power/root pair.
package calc

import (
	"errors"
	"math"
)

var (
	// ErrDivideByZero is returned for division with a zero divisor.
	ErrDivideByZero = errors.New("calc: cannot divide by zero")
	// ErrNegativeRoot is returned for an even root of a negative number.
	ErrNegativeRoot = errors.New("calc: cannot take an even root of a negative number")
	// ErrZeroRootDegree is returned when the root degree is zero.
	ErrZeroRootDegree = errors.New("calc: root degree must not be zero")
	// ErrUnknownOperation is returned for an unrecognized operation name.
	ErrUnknownOperation = errors.New("calc: unknown operation")
)

// Permission tiers.
const (
	PermBasic    = "calc.basic"
	PermAdvanced = "calc.advanced"
)

// Operations by name. The map doubles as the catalog served to clients.
var operationPermissions = map[string]string{
	"add":      PermBasic,
	"subtract": PermBasic,
	"multiply": PermBasic,
	"divide":   PermBasic,
	"power":    PermAdvanced,
	"root":     PermAdvanced,
}

// PermissionFor returns the permission gating an operation, or
// ErrUnknownOperation.
func PermissionFor(op string) (string, error) {
	perm, ok := operationPermissions[op]
	if !ok {
		return "", ErrUnknownOperation
	}
	return perm, nil
}

// Operations returns the sorted operation catalog with its permissions.
func Operations() map[string]string {
	out := make(map[string]string, len(operationPermissions))
	for k, v := range operationPermissions {
		out[k] = v
	}
	return out
}

// Apply evaluates an operation on two operands.
func Apply(op string, a, b float64) (float64, error) {
	switch op {
	case "add":
		return a + b, nil
	case "subtract":
		return a - b, nil
	case "multiply":
		return a * b, nil
	case "divide":
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case "power":
		return math.Pow(a, b), nil
	case "root":
		return Root(a, b)
	default:
		return 0, ErrUnknownOperation
	}
}

// Root computes the degree-n root of x. Odd integer degrees of negative
// numbers are defined; even or fractional degrees of negatives are not.
func Root(x, degree float64) (float64, error) {
	if degree == 0 {
		return 0, ErrZeroRootDegree
	}
	if x < 0 {
		isOddInt := degree == math.Trunc(degree) && math.Mod(math.Abs(degree), 2) == 1
		if !isOddInt {
			return 0, ErrNegativeRoot
		}
		r, err := Root(-x, degree)
		return -r, err
	}
	return math.Pow(x, 1/degree), nil
}
