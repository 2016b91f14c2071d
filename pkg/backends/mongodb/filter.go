package mongodb

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
)

// never matches no document, since every document has an _id
var never = bson.D{{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}}}

// Render converts a filter tree to a MongoDB query document. Ne renders as
// $ne, which also matches documents where the field is null or missing.
func Render(f *akeraapi.Filter) bson.D {
	if f == nil {
		return bson.D{}
	}

	switch f.Op {
	case akeraapi.OpAnd, akeraapi.OpOr:
		if len(f.Children) == 0 {
			if f.Op == akeraapi.OpAnd {
				return bson.D{}
			}
			return never
		}
		children := make(bson.A, len(f.Children))
		for i, c := range f.Children {
			children[i] = Render(c)
		}
		op := "$and"
		if f.Op == akeraapi.OpOr {
			op = "$or"
		}
		return bson.D{{Key: op, Value: children}}
	case akeraapi.OpNot:
		if len(f.Children) == 0 {
			return never
		}
		return bson.D{{Key: "$nor", Value: bson.A{Render(f.Children[0])}}}
	case akeraapi.OpMatches:
		pattern, _ := f.Value.(string)
		return bson.D{{Key: f.Field, Value: primitive.Regex{Pattern: Regex(pattern)}}}
	}

	op, ok := comparisons[f.Op]
	if !ok {
		return never
	}
	return bson.D{{Key: f.Field, Value: bson.D{{Key: op, Value: f.Value}}}}
}

var comparisons = map[akeraapi.Op]string{
	akeraapi.OpEq: "$eq",
	akeraapi.OpNe: "$ne",
	akeraapi.OpGt: "$gt",
	akeraapi.OpGe: "$gte",
	akeraapi.OpLt: "$lt",
	akeraapi.OpLe: "$lte",
}

// Regex converts a MATCHES pattern to an anchored regular expression
func Regex(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*', '%':
			b.WriteString(".*")
		case '.', '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}
