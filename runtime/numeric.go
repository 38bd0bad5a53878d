package runtime

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
)

// toRat widens any supported numeric value to an exact rational.
//
// Every Go integer kind, float32/float64, json.Number, *big.Int, *big.Float
// and *big.Rat (and named types whose underlying kind is numeric) is accepted.
// Floats keep their exact binary value. NaN and infinities are not numbers
// for validation purposes and report ok=false, as does every non-numeric value.
func toRat(v any) (*big.Rat, bool) {
	switch n := v.(type) {
	case nil:
		return nil, false
	case *big.Rat:
		if n == nil {
			return nil, false
		}
		return new(big.Rat).Set(n), true
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Rat).SetInt(n), true
	case *big.Float:
		if n == nil || n.IsInf() {
			return nil, false
		}
		r, _ := n.Rat(nil)
		return r, r != nil
	case json.Number:
		r, ok := new(big.Rat).SetString(string(n))
		return r, ok
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Rat).SetInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Rat).SetInt(new(big.Int).SetUint64(rv.Uint())), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return new(big.Rat).SetFloat64(f), true
	default:
		return nil, false
	}
}

// formatBound renders a declared bound for use in default messages.
func formatBound(v any) string {
	r, ok := toRat(v)
	if !ok {
		return ""
	}
	if r.IsInt() {
		return r.Num().String()
	}
	f, _ := r.Float64()
	return big.NewFloat(f).Text('g', -1)
}
