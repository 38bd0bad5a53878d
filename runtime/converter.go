package runtime

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Enum is implemented by parameter types with a closed set of values.
// String sources are matched case-insensitively against the textual form of
// each value.
type Enum interface {
	EnumValues() []any
}

var enumType = reflect.TypeOf((*Enum)(nil)).Elem()

// coerce converts value to target. nil yields the zero value.
func coerce(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(target) {
		v := reflect.New(target).Elem()
		v.Set(src)
		return v, nil
	}

	if s, ok := value.(string); ok && target.Implements(enumType) {
		return parseEnum(s, target)
	}

	if v, ok, err := coerceNumber(value, target); ok {
		return v, err
	}

	if n, ok := value.(json.Number); ok {
		value = n.String()
	}

	out := reflect.New(target)
	if err := decodeWeak(value, out.Interface(), "json"); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s: %w", value, target, err)
	}
	return out.Elem(), nil
}

// coerceNumber converts between numeric kinds through an exact rational so
// fractional values never truncate into integers and overflows are reported.
// ok is false when either side is not numeric.
func coerceNumber(value any, target reflect.Type) (reflect.Value, bool, error) {
	r, isNum := toRat(value)
	if !isNum {
		return reflect.Value{}, false, nil
	}

	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !r.IsInt() || !r.Num().IsInt64() || out.OverflowInt(r.Num().Int64()) {
			return reflect.Value{}, true, fmt.Errorf("%v does not fit in %s", value, target)
		}
		out.SetInt(r.Num().Int64())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !r.IsInt() || r.Sign() < 0 || !r.Num().IsUint64() || out.OverflowUint(r.Num().Uint64()) {
			return reflect.Value{}, true, fmt.Errorf("%v does not fit in %s", value, target)
		}
		out.SetUint(r.Num().Uint64())
	case reflect.Float32, reflect.Float64:
		f, _ := r.Float64()
		if out.OverflowFloat(f) {
			return reflect.Value{}, true, fmt.Errorf("%v does not fit in %s", value, target)
		}
		out.SetFloat(f)
	default:
		return reflect.Value{}, false, nil
	}
	return out, true, nil
}

func parseEnum(s string, target reflect.Type) (reflect.Value, error) {
	values := reflect.Zero(target).Interface().(Enum).EnumValues()
	for _, candidate := range values {
		if !strings.EqualFold(fmt.Sprint(candidate), strings.TrimSpace(s)) {
			continue
		}
		cv := reflect.ValueOf(candidate)
		if !cv.Type().ConvertibleTo(target) {
			return reflect.Value{}, fmt.Errorf("enum value %v of %s is not a %s", candidate, cv.Type(), target)
		}
		return cv.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("%q is not a valid %s (want one of %v)", s, target, values)
}

// decodeWeak decodes input into target with weak typing, so "5" becomes 5,
// 5 becomes "5" and "30s" becomes a time.Duration.
func decodeWeak(input any, target any, tagName string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tagName,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return err
	}
	return nil
}

// mapToStructFromYAML merges raw config values into a struct using yaml tags.
func mapToStructFromYAML(m map[string]any, target any) error {
	if err := decodeWeak(m, target, "yaml"); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}
	return nil
}
