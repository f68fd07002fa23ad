// Package query translates key ranges into DynamoDB sort-key conditions.
package query

import (
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// MinKey sorts before every non-empty key.
	MinKey = "\x00"

	maxKeyRepeat = 8
)

// MaxKey sorts after every key that does not itself start with it. DynamoDB
// compares strings by their UTF-8 bytes, and U+10FFFF has the largest
// encoding a valid string can carry.
var MaxKey = strings.Repeat(string(utf8.MaxRune), maxKeyRepeat)

// Range is a key range. An empty bound is absent.
type Range struct {
	Gt      string
	Gte     string
	Lt      string
	Lte     string
	Reverse bool
}

// Plan is the sort-key condition for one Range.
type Plan struct {
	Operator    types.ComparisonOperator
	Bounds      []string
	ScanForward bool

	// Empty is set when the range cannot match any key; no query is needed.
	Empty bool
}

// NewPlan builds the query plan for r.
//
// Each side of the range is resolved to one bound, with Gt shadowing Gte and
// Lt shadowing Lte. Two bounds become a BETWEEN, and the caller must drop
// exclusive end points with Contains. With no bound at all the plan is
// BETWEEN the MinKey/MaxKey sentinels. The walk direction only sets
// ScanForward.
func NewPlan(r Range) Plan {
	p := Plan{ScanForward: !r.Reverse}

	low, lowExclusive := r.Gte, false
	if r.Gt != "" {
		low, lowExclusive = r.Gt, true
	}
	high, highExclusive := r.Lte, false
	if r.Lt != "" {
		high, highExclusive = r.Lt, true
	}

	switch {
	case low != "" && high != "":
		if low > high || (low == high && (lowExclusive || highExclusive)) {
			p.Empty = true
			return p
		}
		p.Operator = types.ComparisonOperatorBetween
		p.Bounds = []string{low, high}
	case low != "":
		p.Operator = types.ComparisonOperatorGe
		if lowExclusive {
			p.Operator = types.ComparisonOperatorGt
		}
		p.Bounds = []string{low}
	case high != "":
		p.Operator = types.ComparisonOperatorLe
		if highExclusive {
			p.Operator = types.ComparisonOperatorLt
		}
		p.Bounds = []string{high}
	default:
		p.Operator = types.ComparisonOperatorBetween
		p.Bounds = []string{MinKey, MaxKey}
	}
	return p
}

// Condition returns the key condition for the sort-key attribute.
func (p Plan) Condition() types.Condition {
	values := make([]types.AttributeValue, len(p.Bounds))
	for i, b := range p.Bounds {
		values[i] = &types.AttributeValueMemberS{Value: b}
	}
	return types.Condition{
		ComparisonOperator: p.Operator,
		AttributeValueList: values,
	}
}

// Contains reports whether key lies inside r, with Gt shadowing Gte and Lt
// shadowing Lte. DynamoDB has no exclusive BETWEEN, so rows returned for a
// plan must pass this check.
func (r Range) Contains(key string) bool {
	switch {
	case r.Gt != "":
		if key <= r.Gt {
			return false
		}
	case r.Gte != "":
		if key < r.Gte {
			return false
		}
	}
	switch {
	case r.Lt != "":
		if key >= r.Lt {
			return false
		}
	case r.Lte != "":
		if key > r.Lte {
			return false
		}
	}
	return true
}
