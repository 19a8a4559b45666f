package services

import (
	"dataset_manager/manager/schema"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidValue = errors.New("invalid value")

// coerce converts a decoded JSON value to what the column of field binds.
// Empty strings pass through and are stored as NULL by the record store.
func coerce(field schema.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok && s == "" {
		return s, nil
	}

	switch field.Datatype {
	case schema.Integer:
		return toInt64(value)
	case schema.Numeric:
		return toNumeric(value)
	case schema.Date:
		return toTimeString(value, time.DateOnly)
	case schema.Timestamp:
		return toTimeString(value, time.RFC3339, time.DateTime, time.DateOnly)
	default:
		if s, ok := value.(string); ok {
			return s, nil
		}
		switch value.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("%w: field '%v' expects a string", ErrInvalidValue, field.Name)
		}
		return fmt.Sprint(value), nil
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: '%v' is not an integer", ErrInvalidValue, v)
		}
		return i, nil
	case []byte:
		return toInt64(string(v))
	default:
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, value)
	}
}

// Numeric values bind as decimal strings so no precision is lost on the way
// to the column.
func toNumeric(value any) (string, error) {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64, int:
		return fmt.Sprint(v), nil
	case json.Number:
		return v.String(), nil
	case string:
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return "", fmt.Errorf("%w: '%v' is not a number", ErrInvalidValue, v)
		}
		return strings.TrimSpace(v), nil
	default:
		return "", fmt.Errorf("%w: %v is not a number", ErrInvalidValue, value)
	}
}

func toTimeString(value any, layouts ...string) (string, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v.Format(layouts[0]), nil
	case string:
		s = strings.TrimSpace(v)
	default:
		return "", fmt.Errorf("%w: %v is not a date", ErrInvalidValue, value)
	}

	for _, layout := range layouts {
		if _, err := time.Parse(layout, s); err == nil {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: '%v' is not a valid %v", ErrInvalidValue, s, layouts[0])
}

// coerceId converts an item id from a URL or payload to the dataset's id type.
func coerceId(dataset *schema.Dataset, id any) (any, error) {
	switch dataset.IdType {
	case schema.SerialId, schema.IntegerId:
		return toInt64(id)
	default:
		s := fmt.Sprint(id)
		if s == "" {
			return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidValue)
		}
		return s, nil
	}
}
