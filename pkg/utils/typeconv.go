package utils

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"
	jsoniter "github.com/json-iterator/go"
	mssql "github.com/microsoft/go-mssqldb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonNumbers decodes JSON numbers as json.Number so that integers wider than a float64 mantissa survive.
var jsonNumbers = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

const (
	bqDateTimeLayout = "2006-01-02T15:04:05.999999"
	bqDateLayout     = "2006-01-02"
	bqTimeLayout     = "15:04:05.999999"
)

// ToBigQueryValue converts a value scanned from a database/sql driver into the JSON
// representation BigQuery expects for a column of fieldType in a newline-delimited
// JSON load. maxNesting applies to JSON columns only.
func ToBigQueryValue(val any, fieldType bigquery.FieldType, maxNesting int) (any, error) {
	if val == nil {
		return nil, nil
	}

	switch fieldType {
	case bigquery.IntegerFieldType:
		return ConvertToInt64(val)
	case bigquery.FloatFieldType:
		return convertFloat(val)
	case bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		return convertDecimal(val)
	case bigquery.BooleanFieldType:
		return convertBool(val)
	case bigquery.TimestampFieldType:
		return convertTime(val, func(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) })
	case bigquery.DateTimeFieldType:
		return convertTime(val, func(t time.Time) string { return t.Format(bqDateTimeLayout) })
	case bigquery.DateFieldType:
		return convertTime(val, func(t time.Time) string { return t.Format(bqDateLayout) })
	case bigquery.TimeFieldType:
		return convertTime(val, func(t time.Time) string { return t.Format(bqTimeLayout) })
	case bigquery.JSONFieldType:
		return convertJSON(val, maxNesting)
	case bigquery.BytesFieldType:
		return convertBytes(val), nil
	default:
		return convertString(val), nil
	}
}

func ConvertToInt64(val any) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return ConvertToInt64(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows INT64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("cannot convert %v to an integer without losing precision", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func convertFloat(val any) (any, error) {
	var f float64
	switch v := val.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case string, []byte:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(ConvertToString(v)), 64)
		if err != nil {
			return nil, err
		}
		f = parsed
	default:
		i, err := ConvertToInt64(val)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to float", val)
		}
		f = float64(i)
	}

	// JSON has no literal for these, BigQuery accepts the string forms.
	switch {
	case math.IsNaN(f):
		return "NaN", nil
	case math.IsInf(f, 1):
		return "Infinity", nil
	case math.IsInf(f, -1):
		return "-Infinity", nil
	}
	return f, nil
}

// convertDecimal keeps decimals as strings so that no precision is lost on the way.
func convertDecimal(val any) (any, error) {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case []byte:
		return strings.TrimSpace(string(v)), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	default:
		i, err := ConvertToInt64(val)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to decimal", val)
		}
		return strconv.FormatInt(i, 10), nil
	}
}

func convertBool(val any) (any, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case []byte:
		// MySQL BIT(1)
		if len(v) == 1 && v[0] <= 1 {
			return v[0] == 1, nil
		}
		return strconv.ParseBool(strings.TrimSpace(string(v)))
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		i, err := ConvertToInt64(val)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to bool", val)
		}
		return i != 0, nil
	}
}

func convertTime(val any, format func(time.Time) string) (any, error) {
	switch v := val.(type) {
	case time.Time:
		return format(v), nil
	case string, []byte:
		s := strings.TrimSpace(ConvertToString(v))
		if t, err := ConvertDateTime(s); err == nil {
			return format(t), nil
		}
		// Leave values such as "14:05:00" or "infinity" for BigQuery to judge.
		return s, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to a time value", val)
	}
}

// ConvertDateTime parses the textual date/time layouts drivers commonly return.
func ConvertDateTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime: %s", s)
}

func convertJSON(val any, maxNesting int) (any, error) {
	var decoded any
	switch v := val.(type) {
	case string:
		if err := jsonNumbers.UnmarshalFromString(v, &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON value: %w", err)
		}
	case []byte:
		if err := jsonNumbers.Unmarshal(v, &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON value: %w", err)
		}
	default:
		decoded = v
	}
	return LimitNesting(decoded, maxNesting), nil
}

func convertBytes(val any) any {
	switch v := val.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case string:
		return base64.StdEncoding.EncodeToString([]byte(v))
	default:
		return base64.StdEncoding.EncodeToString([]byte(fmt.Sprint(v)))
	}
}

// convertString is ConvertToString for STRING columns: bytes that are not valid UTF-8 are
// base64 encoded instead of being mangled by the JSON encoder.
func convertString(val any) any {
	if b, ok := val.([]byte); ok && !utf8.Valid(b) {
		return base64.StdEncoding.EncodeToString(b)
	}
	return ConvertToString(val)
}

// ConvertUniqueIdentifier formats a SQL Server UNIQUEIDENTIFIER, which go-mssqldb returns as
// 16 bytes in the server's mixed-endian order, in its canonical text form.
func ConvertUniqueIdentifier(val any) (any, error) {
	if val == nil {
		return nil, nil
	}
	switch v := val.(type) {
	case []byte:
		var id mssql.UniqueIdentifier
		if err := id.Scan(v); err != nil {
			return nil, err
		}
		return id.String(), nil
	case string:
		return v, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to a uniqueidentifier", val)
	}
}

func ConvertToString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
