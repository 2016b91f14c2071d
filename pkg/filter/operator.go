package filter

// Operator is an ORM predicate operator
type Operator int

const (
	OpEq Operator = iota + 1
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpLike
	OpNlike
	OpBetween
	OpInq
	OpNin
)

const (
	keyAnd = "and"
	keyOr  = "or"
)

var operatorKeys = map[string]Operator{
	"eq":      OpEq,
	"neq":     OpNeq,
	"gt":      OpGt,
	"gte":     OpGte,
	"lt":      OpLt,
	"lte":     OpLte,
	"like":    OpLike,
	"nlike":   OpNlike,
	"between": OpBetween,
	"inq":     OpInq,
	"nin":     OpNin,
}

// ParseOperator looks up the operator for a predicate key
func ParseOperator(key string) (Operator, bool) {
	op, ok := operatorKeys[key]
	return op, ok
}

func (o Operator) String() string {
	for k, v := range operatorKeys {
		if v == o {
			return k
		}
	}
	return "unknown"
}
