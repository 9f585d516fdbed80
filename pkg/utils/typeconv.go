package utils

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/BartekS5/fieldmap/pkg/models"
)

// KindOf reports the JSON kind of a decoded value.
func KindOf(val interface{}) models.ValueKind {
	switch val.(type) {
	case nil:
		return models.KindNull
	case bool:
		return models.KindBool
	case float64, float32, int, int32, int64, json.Number:
		return models.KindNumber
	case string:
		return models.KindString
	case []interface{}:
		return models.KindArray
	case map[string]interface{}:
		return models.KindObject
	default:
		return models.KindNull
	}
}

// DataTypeOf picks the default output type for a sample value: numbers map
// to DataTypeNumber, everything else is carried as a string.
func DataTypeOf(kind models.ValueKind) models.DataType {
	if kind == models.KindNumber {
		return models.DataTypeNumber
	}
	return models.DataTypeString
}

// ConvertToFloat handles the numeric shapes a decoded sample can take.
func ConvertToFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}

// FormatSample renders a sample value for display in a table cell.
func FormatSample(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
