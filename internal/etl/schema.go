package etl

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"

	"github.com/BartekS5/jira2bq/pkg/models"
	"github.com/BartekS5/jira2bq/pkg/utils"
)

var sourceTypes = map[string]bigquery.FieldType{
	"INT": bigquery.IntegerFieldType, "INT2": bigquery.IntegerFieldType, "INT4": bigquery.IntegerFieldType,
	"INT8": bigquery.IntegerFieldType, "INTEGER": bigquery.IntegerFieldType, "SMALLINT": bigquery.IntegerFieldType,
	"BIGINT": bigquery.IntegerFieldType, "TINYINT": bigquery.IntegerFieldType, "MEDIUMINT": bigquery.IntegerFieldType,
	"SERIAL": bigquery.IntegerFieldType, "BIGSERIAL": bigquery.IntegerFieldType, "OID": bigquery.IntegerFieldType,
	"YEAR": bigquery.IntegerFieldType, "UNSIGNED INT": bigquery.IntegerFieldType,
	"UNSIGNED SMALLINT": bigquery.IntegerFieldType, "UNSIGNED TINYINT": bigquery.IntegerFieldType,
	"UNSIGNED MEDIUMINT": bigquery.IntegerFieldType,

	"FLOAT": bigquery.FloatFieldType, "FLOAT4": bigquery.FloatFieldType, "FLOAT8": bigquery.FloatFieldType,
	"REAL": bigquery.FloatFieldType, "DOUBLE": bigquery.FloatFieldType, "DOUBLE PRECISION": bigquery.FloatFieldType,

	"NUMERIC": bigquery.BigNumericFieldType, "DECIMAL": bigquery.BigNumericFieldType, "MONEY": bigquery.BigNumericFieldType,
	"SMALLMONEY": bigquery.BigNumericFieldType, "UNSIGNED BIGINT": bigquery.BigNumericFieldType,
	"UNSIGNED DECIMAL": bigquery.BigNumericFieldType,

	"BOOL": bigquery.BooleanFieldType, "BOOLEAN": bigquery.BooleanFieldType, "BIT": bigquery.BooleanFieldType,

	"TIMESTAMPTZ": bigquery.TimestampFieldType, "DATETIMEOFFSET": bigquery.TimestampFieldType,

	"TIMESTAMP": bigquery.DateTimeFieldType, "DATETIME": bigquery.DateTimeFieldType,
	"DATETIME2": bigquery.DateTimeFieldType, "SMALLDATETIME": bigquery.DateTimeFieldType,

	"DATE": bigquery.DateFieldType,
	"TIME": bigquery.TimeFieldType,

	"JSON": bigquery.JSONFieldType, "JSONB": bigquery.JSONFieldType,

	"BYTEA": bigquery.BytesFieldType, "BINARY": bigquery.BytesFieldType, "VARBINARY": bigquery.BytesFieldType,
	"IMAGE": bigquery.BytesFieldType, "BLOB": bigquery.BytesFieldType, "TINYBLOB": bigquery.BytesFieldType,
	"MEDIUMBLOB": bigquery.BytesFieldType, "LONGBLOB": bigquery.BytesFieldType,

	"UNIQUEIDENTIFIER": bigquery.StringFieldType,
}

// FieldTypeFor maps a driver-reported column type name onto a BigQuery type.
// Unknown types, arrays and enums land as STRING.
func FieldTypeFor(sourceType string) bigquery.FieldType {
	if ft, ok := sourceTypes[typeName(sourceType)]; ok {
		return ft
	}
	return bigquery.StringFieldType
}

func typeName(sourceType string) string {
	name := strings.ToUpper(strings.TrimSpace(sourceType))
	if idx := strings.IndexByte(name, '('); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}
	return name
}

// Schema builds the destination schema for columns. Every field is NULLABLE; names are
// normalised and must stay unique after normalisation.
func Schema(columns []models.Column) (bigquery.Schema, error) {
	schema := make(bigquery.Schema, len(columns))
	owners := make(map[string]string, len(columns))
	for i, col := range columns {
		name := utils.NormalizeIdentifier(col.Name)
		if owner, ok := owners[name]; ok {
			return nil, fmt.Errorf("columns %q and %q both map to destination column %q", owner, col.Name, name)
		}
		owners[name] = col.Name

		schema[i] = &bigquery.FieldSchema{
			Name: name,
			Type: FieldTypeFor(col.SourceType),
		}
	}
	return schema, nil
}

type valueConverter func(val any) (any, error)

// rowEncoder converts records of one result set into destination rows.
type rowEncoder struct {
	names   []string
	convert []valueConverter
}

func newRowEncoder(schema bigquery.Schema, columns []models.Column, maxNesting int) (*rowEncoder, error) {
	if len(columns) != len(schema) {
		return nil, fmt.Errorf("%d columns, schema has %d fields", len(columns), len(schema))
	}

	e := &rowEncoder{
		names:   make([]string, len(schema)),
		convert: make([]valueConverter, len(schema)),
	}
	for i, field := range schema {
		e.names[i] = field.Name
		if typeName(columns[i].SourceType) == "UNIQUEIDENTIFIER" {
			e.convert[i] = utils.ConvertUniqueIdentifier
			continue
		}
		fieldType := field.Type
		e.convert[i] = func(val any) (any, error) {
			return utils.ToBigQueryValue(val, fieldType, maxNesting)
		}
	}
	return e, nil
}

// toRow converts rec into the JSON object written for one destination row.
func (e *rowEncoder) toRow(rec models.Record) (map[string]any, error) {
	if rec.Len() != len(e.names) {
		return nil, fmt.Errorf("record has %d fields, schema has %d", rec.Len(), len(e.names))
	}

	row := make(map[string]any, len(e.names))
	for i, field := range rec.Fields {
		val, err := e.convert[i](field.Value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", field.Name, err)
		}
		row[e.names[i]] = val
	}
	return row, nil
}
