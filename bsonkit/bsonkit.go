// Package bsonkit converts between SignalDB's plain map[string]any
// document shape and the BSON-flavored values go.mongodb.org/mongo-driver
// decodes into (bson.M, bson.A, primitive.ObjectID, primitive.DateTime,
// primitive.A), so storage/mongodoc can hand the rest of the module
// ordinary Go values it already knows how to Serialize/Get/Set, the same
// boundary role the teacher's bsonpatch.go plays between its typed
// documents and Mongo's wire representation.
package bsonkit

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToItem recursively converts a value decoded from a BSON document
// (typically a bson.M from cursor.Decode) into the plain
// map[string]any/[]any/string/float64/time.Time shapes valueutil and
// selector operate on.
func ToItem(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToItem(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToItem(e)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToItem(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToItem(e)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToItem(e)
		}
		return out
	case primitive.Decimal128:
		return val.String()
	case int32:
		return int(val)
	default:
		return v
	}
}

// ToItemDoc is ToItem specialized to a top-level document.
func ToItemDoc(doc bson.M) map[string]any {
	converted := ToItem(doc)
	m, _ := converted.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

// ToBSON recursively converts a plain item into BSON-friendly values:
// time.Time becomes primitive.DateTime so Mongo indexes/compares it as a
// native date instead of an opaque string.
func ToBSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := bson.M{}
		for k, e := range val {
			out[k] = ToBSON(e)
		}
		return out
	case []any:
		out := make(bson.A, len(val))
		for i, e := range val {
			out[i] = ToBSON(e)
		}
		return out
	case time.Time:
		return primitive.NewDateTimeFromTime(val)
	default:
		return v
	}
}

// ToBSONDoc is ToBSON specialized to a top-level document.
func ToBSONDoc(item map[string]any) bson.M {
	converted := ToBSON(item)
	m, _ := converted.(bson.M)
	if m == nil {
		return bson.M{}
	}
	return m
}
