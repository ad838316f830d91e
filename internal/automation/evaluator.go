package automation

import (
	"fmt"
	"strconv"
	"strings"

	"automation-engine/internal/models"
)

// Evaluate decides whether a single condition matches the inspection
// snapshot. It is pure: no storage access, no side effects.
//
// A condition whose foreign key no longer resolves on the snapshot (service
// removed, category gone) evaluates to false rather than erroring, so one
// dangling reference never poisons the evaluation of sibling conditions. An
// error is returned only for structurally malformed conditions (unknown type
// or operator), which the caller treats as non-matching.
func Evaluate(condition models.Condition, inspection *models.Inspection) (bool, error) {
	switch condition.Type {
	case models.ConditionService:
		return findService(inspection, condition.ServiceID) != nil, nil

	case models.ConditionAddon:
		service := findService(inspection, condition.ServiceID)
		if service == nil {
			return false, nil
		}
		// Stored add-on names can differ in casing from the condition
		// definition, so the match is case-insensitive.
		for _, addon := range service.Addons {
			if strings.EqualFold(addon.Name, condition.AddonName) {
				return true, nil
			}
		}
		return false, nil

	case models.ConditionServiceCategory:
		for _, service := range inspection.Services {
			if string(service.Category) == condition.ServiceCategory {
				return true, nil
			}
		}
		return false, nil

	case models.ConditionCategory:
		for _, contact := range inspection.Contacts {
			for _, categoryID := range contact.CategoryIDs {
				if categoryID == condition.CategoryID {
					return true, nil
				}
			}
		}
		return false, nil

	case models.ConditionAttribute:
		return evaluateAttribute(condition, inspection)

	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedConditionType, condition.Type)
	}
}

// EvaluateAll combines a condition list under AND or OR logic.
//
// An empty list matches unconditionally. A single condition ignores the
// logic operand. AND short-circuits on the first false, OR on the first
// true. Missing logic defaults to AND.
func EvaluateAll(conditions []models.Condition, logic models.ConditionLogic, inspection *models.Inspection) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	if logic == "" {
		logic = models.LogicAnd
	}

	for _, condition := range conditions {
		matched, err := Evaluate(condition, inspection)
		if err != nil {
			return false, err
		}

		if logic == models.LogicOr {
			if matched {
				return true, nil
			}
		} else if !matched {
			return false, nil
		}
	}

	return logic != models.LogicOr, nil
}

func findService(inspection *models.Inspection, serviceID string) *models.InspectionService {
	for idx := range inspection.Services {
		if inspection.Services[idx].ServiceID == serviceID {
			return &inspection.Services[idx]
		}
	}
	return nil
}

func evaluateAttribute(condition models.Condition, inspection *models.Inspection) (bool, error) {
	var value string
	if inspection.Attributes != nil {
		value = inspection.Attributes[condition.Field]
	}

	switch condition.Operator {
	case models.OperatorExists:
		return value != "", nil
	case models.OperatorEquals:
		return value != "" && value == condition.Value, nil
	case models.OperatorNotEquals:
		return value != "" && value != condition.Value, nil
	case models.OperatorContains:
		return value != "" && strings.Contains(value, condition.Value), nil
	case models.OperatorGreater, models.OperatorLess:
		return compareNumeric(value, condition.Operator, condition.Value), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, condition.Operator)
	}
}

// compareNumeric returns false for non-numeric operands; a fact that cannot
// be compared is a non-match, not an error
func compareNumeric(value string, operator models.ConditionOperator, operand string) bool {
	left, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false
	}
	right, err := strconv.ParseFloat(operand, 64)
	if err != nil {
		return false
	}
	if operator == models.OperatorGreater {
		return left > right
	}
	return left < right
}
