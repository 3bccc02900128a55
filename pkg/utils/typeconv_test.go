package utils

import (
	"math"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uuidLike [2]byte

func (u uuidLike) String() string { return "ab-cd" }

func TestToBigQueryValue_Nil(t *testing.T) {
	for _, ft := range []bigquery.FieldType{bigquery.IntegerFieldType, bigquery.StringFieldType, bigquery.JSONFieldType} {
		val, err := ToBigQueryValue(nil, ft, 2)
		assert.NoError(t, err)
		assert.Nil(t, val)
	}
}

func TestToBigQueryValue_Integer(t *testing.T) {
	for _, input := range []any{int64(42), int32(42), int(42), uint16(42), float64(42), []byte("42"), " 42 "} {
		val, err := ToBigQueryValue(input, bigquery.IntegerFieldType, 2)
		assert.NoError(t, err)
		assert.Equal(t, int64(42), val, "%T", input)
	}

	_, err := ToBigQueryValue(1.5, bigquery.IntegerFieldType, 2)
	assert.ErrorContains(t, err, "losing precision")

	_, err = ToBigQueryValue(uint64(math.MaxUint64), bigquery.IntegerFieldType, 2)
	assert.ErrorContains(t, err, "overflows INT64")

	_, err = ToBigQueryValue(struct{}{}, bigquery.IntegerFieldType, 2)
	assert.ErrorContains(t, err, "cannot convert struct {} to int")
}

func TestToBigQueryValue_Float(t *testing.T) {
	val, err := ToBigQueryValue(float32(1.5), bigquery.FloatFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, 1.5, val)

	val, err = ToBigQueryValue([]byte("2.25"), bigquery.FloatFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2.25, val)

	val, err = ToBigQueryValue(int64(3), bigquery.FloatFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, 3.0, val)

	val, err = ToBigQueryValue(math.NaN(), bigquery.FloatFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "NaN", val)

	val, err = ToBigQueryValue(math.Inf(-1), bigquery.FloatFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "-Infinity", val)
}

func TestToBigQueryValue_Decimal(t *testing.T) {
	val, err := ToBigQueryValue([]byte("12345678901234567890.123456789"), bigquery.BigNumericFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "12345678901234567890.123456789", val)

	val, err = ToBigQueryValue(0.1, bigquery.NumericFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "0.1", val)

	val, err = ToBigQueryValue(int64(7), bigquery.BigNumericFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "7", val)

	// UNSIGNED BIGINT lands in BIGNUMERIC.
	val, err = ToBigQueryValue(uint64(math.MaxUint64), bigquery.BigNumericFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "18446744073709551615", val)

	val, err = ToBigQueryValue(uint(42), bigquery.BigNumericFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "42", val)

	val, err = ToBigQueryValue(uint32(math.MaxUint32), bigquery.BigNumericFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "4294967295", val)
}

func TestToBigQueryValue_Bool(t *testing.T) {
	for input, expected := range map[any]bool{true: true, int64(1): true, int64(0): false, "false": false, "t": true} {
		val, err := ToBigQueryValue(input, bigquery.BooleanFieldType, 2)
		assert.NoError(t, err)
		assert.Equal(t, expected, val, "%v", input)
	}

	val, err := ToBigQueryValue([]byte{0x01}, bigquery.BooleanFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, true, val)

	_, err = ToBigQueryValue("maybe", bigquery.BooleanFieldType, 2)
	assert.Error(t, err)
}

func TestToBigQueryValue_Time(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 123456000, time.FixedZone("CET", 3600))

	val, err := ToBigQueryValue(ts, bigquery.TimestampFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "2024-03-05T13:07:09.123456Z", val)

	val, err = ToBigQueryValue(ts, bigquery.DateTimeFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "2024-03-05T14:07:09.123456", val)

	val, err = ToBigQueryValue(ts, bigquery.DateFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "2024-03-05", val)

	val, err = ToBigQueryValue(ts, bigquery.TimeFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "14:07:09.123456", val)

	val, err = ToBigQueryValue([]byte("2024-03-05 14:07:09"), bigquery.DateTimeFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "2024-03-05T14:07:09", val)

	val, err = ToBigQueryValue("14:07:09", bigquery.TimeFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "14:07:09", val)

	_, err = ToBigQueryValue(42, bigquery.DateFieldType, 2)
	assert.Error(t, err)
}

func TestToBigQueryValue_JSON(t *testing.T) {
	val, err := ToBigQueryValue([]byte(`{"fields":{"labels":["a","b"]}}`), bigquery.JSONFieldType, 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fields": map[string]any{"labels": `["a","b"]`}}, val)

	_, err = ToBigQueryValue(`{"broken"`, bigquery.JSONFieldType, 2)
	assert.ErrorContains(t, err, "invalid JSON value")
}

func TestToBigQueryValue_JSONKeepsLargeIntegers(t *testing.T) {
	val, err := ToBigQueryValue(`{"id":9007199254740993,"ratio":0.25,"deep":{"ids":[9007199254740995]}}`, bigquery.JSONFieldType, 2)
	require.NoError(t, err)

	out, err := json.MarshalToString(val)
	require.NoError(t, err)
	assert.Equal(t, `{"deep":{"ids":"[9007199254740995]"},"id":9007199254740993,"ratio":0.25}`, out)
}

func TestToBigQueryValue_BytesAndString(t *testing.T) {
	val, err := ToBigQueryValue([]byte{0xde, 0xad}, bigquery.BytesFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "3q0=", val)

	val, err = ToBigQueryValue([]byte("ABC-1"), bigquery.StringFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "ABC-1", val)

	val, err = ToBigQueryValue(uuidLike{}, bigquery.StringFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "ab-cd", val)

	val, err = ToBigQueryValue(int64(9), bigquery.StringFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "9", val)

	// Bytes that are not UTF-8 are kept intact as base64.
	val, err = ToBigQueryValue([]byte{0x6f, 0xe2, 0x8c, 0xff, 0x01, 0x9a}, bigquery.StringFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "b+KM/wGa", val)

	val, err = ToBigQueryValue([]byte("Zażółć"), bigquery.StringFieldType, 2)
	assert.NoError(t, err)
	assert.Equal(t, "Zażółć", val)
}

func TestConvertUniqueIdentifier(t *testing.T) {
	raw := []byte{0xFF, 0x19, 0x96, 0x6F, 0x86, 0x8B, 0x11, 0xD0, 0xB4, 0x2D, 0x00, 0xC0, 0x4F, 0xC9, 0x64, 0xFF}
	val, err := ConvertUniqueIdentifier(raw)
	require.NoError(t, err)
	assert.Equal(t, "6F9619FF-8B86-D011-B42D-00C04FC964FF", val)

	val, err = ConvertUniqueIdentifier(nil)
	assert.NoError(t, err)
	assert.Nil(t, val)

	_, err = ConvertUniqueIdentifier([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = ConvertUniqueIdentifier(42)
	assert.ErrorContains(t, err, "cannot convert int to a uniqueidentifier")
}

func TestConvertDateTime(t *testing.T) {
	for _, input := range []string{"2024-03-05T14:07:09Z", "2024-03-05 14:07:09+00", "2024-03-05 14:07:09.5", "2024-03-05"} {
		_, err := ConvertDateTime(input)
		assert.NoError(t, err, input)
	}

	_, err := ConvertDateTime("yesterday")
	assert.ErrorContains(t, err, "unable to parse datetime")
}
