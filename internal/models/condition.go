package models

// ConditionType categorizes the inspection fact a condition tests
type ConditionType string

const (
	// ConditionService matches when the inspection includes a service
	ConditionService ConditionType = "service"
	// ConditionAddon matches when a service on the inspection carries an add-on
	ConditionAddon ConditionType = "addon"
	// ConditionServiceCategory matches when any linked service has a category
	ConditionServiceCategory ConditionType = "service_category"
	// ConditionCategory matches when a linked person carries a category tag
	ConditionCategory ConditionType = "category"
	// ConditionAttribute compares a named inspection attribute against a value
	ConditionAttribute ConditionType = "attribute"
)

// ConditionTypes lists every recognized condition type
var ConditionTypes = []ConditionType{
	ConditionService,
	ConditionAddon,
	ConditionServiceCategory,
	ConditionCategory,
	ConditionAttribute,
}

// IsValid reports whether the condition type is recognized
func (t ConditionType) IsValid() bool {
	for _, known := range ConditionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ConditionOperator is the comparison applied by attribute conditions.
// The set is closed; unknown operators are rejected at write time.
type ConditionOperator string

const (
	OperatorEquals    ConditionOperator = "eq"
	OperatorNotEquals ConditionOperator = "ne"
	OperatorContains  ConditionOperator = "contains"
	OperatorExists    ConditionOperator = "exists"
	OperatorGreater   ConditionOperator = "gt"
	OperatorLess      ConditionOperator = "lt"
)

// ConditionOperators lists every recognized operator
var ConditionOperators = []ConditionOperator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorContains,
	OperatorExists,
	OperatorGreater,
	OperatorLess,
}

// IsValid reports whether the operator is recognized
func (o ConditionOperator) IsValid() bool {
	for _, known := range ConditionOperators {
		if o == known {
			return true
		}
	}
	return false
}

// ConditionLogic combines a multi-condition list
type ConditionLogic string

const (
	// LogicAnd requires every condition to match
	LogicAnd ConditionLogic = "AND"
	// LogicOr requires at least one condition to match
	LogicOr ConditionLogic = "OR"
)

// IsValid reports whether the logic operand is recognized
func (l ConditionLogic) IsValid() bool {
	return l == LogicAnd || l == LogicOr
}

// Condition is a single testable predicate against inspection facts.
//
// The populated optional fields depend on Type: service conditions carry
// ServiceID; addon conditions carry ServiceID and AddonName; service-category
// conditions carry ServiceCategory; category conditions carry CategoryID;
// attribute conditions carry Field, Operator and Value. Structural validation
// at write time rejects any other combination, so the evaluator can switch
// exhaustively on Type.
type Condition struct {
	Type     ConditionType     `json:"type"`
	Operator ConditionOperator `json:"operator,omitempty"`
	Field    string            `json:"field,omitempty"`
	Value    string            `json:"value,omitempty"`

	ServiceID       string `json:"service_id,omitempty"`
	AddonName       string `json:"addon_name,omitempty"`
	ServiceCategory string `json:"service_category,omitempty"`
	CategoryID      string `json:"category_id,omitempty"`
}
