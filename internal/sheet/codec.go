package sheet

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ErrCoerce is returned when a cell cannot be converted to its field type.
var ErrCoerce = errors.New("cannot coerce cell")

// timeLayouts are tried in order when a date cell holds a string.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
}

// FormatTime renders t the way the store persists dates. The zero time
// renders as an empty cell.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ToString coerces a cell to a string. Nil is "".
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return FormatTime(x)
	default:
		return fmt.Sprint(x)
	}
}

// ToNumber coerces a cell to a float64. Nil and blank strings are 0.
func ToNumber(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q as number", ErrCoerce, x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T as number", ErrCoerce, v)
	}
}

// ToBool coerces a cell to a bool. Nil and blank strings are false.
// Checkbox-style strings (yes, y, checked, on, 1, true) are true.
func ToBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "false", "no", "n", "0", "off", "unchecked":
			return false, nil
		case "true", "yes", "y", "1", "on", "checked":
			return true, nil
		}
		return false, fmt.Errorf("%w: %q as bool", ErrCoerce, x)
	default:
		return false, fmt.Errorf("%w: %T as bool", ErrCoerce, v)
	}
}

// ToTime coerces a cell to a time. Nil and blank strings are the zero time.
// Numbers are read as Unix milliseconds.
func ToTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case float64:
		if x == 0 {
			return time.Time{}, nil
		}
		sec, frac := math.Modf(x / 1000)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q as time", ErrCoerce, x)
	default:
		return time.Time{}, fmt.Errorf("%w: %T as time", ErrCoerce, v)
	}
}

var timeType = reflect.TypeOf(time.Time{})

type column struct {
	field int
	col   int
}

// columns returns the col-tagged fields of t and the width of the row.
func columns(t reflect.Type) ([]column, int, error) {
	var cols []column
	width := 0
	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("col")
		if !ok || tag == "-" {
			continue
		}
		n, err := strconv.Atoi(tag)
		if err != nil || n < 0 {
			return nil, 0, fmt.Errorf("field %s: invalid col tag %q", t.Field(i).Name, tag)
		}
		cols = append(cols, column{field: i, col: n})
		width = max(width, n+1)
	}
	return cols, width, nil
}

// Decode fills the col-tagged fields of the struct pointed to by dst from
// row. Missing trailing cells decode as nil.
func Decode(row []any, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("decode target must be a struct pointer, got %T", dst)
	}
	rv = rv.Elem()
	cols, _, err := columns(rv.Type())
	if err != nil {
		return err
	}

	for _, c := range cols {
		var cell any
		if c.col < len(row) {
			cell = row[c.col]
		}
		f := rv.Field(c.field)
		if err := setField(f, cell); err != nil {
			return fmt.Errorf("column %d (%s): %w", c.col, rv.Type().Field(c.field).Name, err)
		}
	}
	return nil
}

func setField(f reflect.Value, cell any) error {
	if f.Type() == timeType {
		t, err := ToTime(cell)
		if err != nil {
			return err
		}
		f.Set(reflect.ValueOf(t))
		return nil
	}

	switch f.Kind() {
	case reflect.String:
		f.SetString(ToString(cell))
	case reflect.Bool:
		b, err := ToBool(cell)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case reflect.Float32, reflect.Float64:
		n, err := ToNumber(cell)
		if err != nil {
			return err
		}
		f.SetFloat(n)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := ToNumber(cell)
		if err != nil {
			return err
		}
		f.SetInt(int64(math.Round(n)))
	default:
		return fmt.Errorf("unsupported field kind %s", f.Kind())
	}
	return nil
}

// Encode renders the col-tagged fields of src (a struct or struct pointer)
// as a row. Times are written in FormatTime form and ints as float64, which
// is how the store hands them back.
func Encode(src any) ([]any, error) {
	rv := reflect.ValueOf(src)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("encode source must be a struct, got %T", src)
	}
	cols, width, err := columns(rv.Type())
	if err != nil {
		return nil, err
	}

	row := make([]any, width)
	for i := range row {
		row[i] = ""
	}
	for _, c := range cols {
		f := rv.Field(c.field)
		if f.Type() == timeType {
			row[c.col] = FormatTime(f.Interface().(time.Time))
			continue
		}
		switch f.Kind() {
		case reflect.String:
			row[c.col] = f.String()
		case reflect.Bool:
			row[c.col] = f.Bool()
		case reflect.Float32, reflect.Float64:
			row[c.col] = f.Float()
		case reflect.Int, reflect.Int32, reflect.Int64:
			row[c.col] = float64(f.Int())
		default:
			return nil, fmt.Errorf("unsupported field kind %s", f.Kind())
		}
	}
	return row, nil
}
