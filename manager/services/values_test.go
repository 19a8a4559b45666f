package services

import (
	"dataset_manager/manager/schema"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	integer := schema.Field{Name: "age", Datatype: schema.Integer}
	numeric := schema.Field{Name: "price", Datatype: schema.Numeric}
	date := schema.Field{Name: "born", Datatype: schema.Date}
	timestamp := schema.Field{Name: "seen", Datatype: schema.Timestamp}
	varchar := schema.Field{Name: "name", Datatype: schema.Varchar}

	cases := []struct {
		field    schema.Field
		input    any
		expected any
	}{
		{integer, float64(29), int64(29)},
		{integer, "29", int64(29)},
		{integer, json.Number("29"), int64(29)},
		{integer, nil, nil},
		{integer, "", ""},
		{numeric, float64(1.25), "1.25"},
		{numeric, "3.10", "3.10"},
		{date, "2024-02-29", "2024-02-29"},
		{timestamp, "2024-02-29T10:00:00Z", "2024-02-29T10:00:00Z"},
		{timestamp, "2024-02-29 10:00:00", "2024-02-29 10:00:00"},
		{varchar, "Shinobu", "Shinobu"},
		{varchar, float64(12), "12"},
		{varchar, true, "true"},
	}
	for _, c := range cases {
		value, err := coerce(c.field, c.input)
		require.NoError(t, err, "%v %v", c.field.Datatype, c.input)
		assert.Equal(t, c.expected, value, "%v %v", c.field.Datatype, c.input)
	}

	invalid := []struct {
		field schema.Field
		input any
	}{
		{integer, float64(2.5)},
		{integer, "twenty"},
		{integer, true},
		{numeric, "cheap"},
		{date, "29/02/2024"},
		{timestamp, "yesterday"},
		{varchar, map[string]any{"a": 1}},
		{varchar, []any{"a"}},
	}
	for _, c := range invalid {
		_, err := coerce(c.field, c.input)
		assert.ErrorIs(t, err, ErrInvalidValue, "%v %v", c.field.Datatype, c.input)
	}
}

func TestCoerceId(t *testing.T) {
	serial := &schema.Dataset{Name: "foo", IdType: schema.SerialId}
	varchar := &schema.Dataset{Name: "foo", IdType: schema.VarcharId}

	id, err := coerceId(serial, "12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = coerceId(serial, "abc")
	assert.ErrorIs(t, err, ErrInvalidValue)

	id, err = coerceId(varchar, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = coerceId(varchar, "")
	assert.ErrorIs(t, err, ErrInvalidValue)
}
