package automation

import "errors"

var (
	// ErrUnsupportedConditionType is returned when a condition carries a type
	// outside the closed enum
	ErrUnsupportedConditionType = errors.New("unsupported condition type")

	// ErrUnsupportedOperator is returned when an attribute condition carries
	// an operator outside the closed enum
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrInspectionNotFound is returned when the referenced inspection does
	// not exist
	ErrInspectionNotFound = errors.New("inspection not found")
)
