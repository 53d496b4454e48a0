package stats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_MarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{name: "available", value: Of(42, nil), want: `{"value":42,"available":true}`},
		{name: "available zero", value: Of(0, nil), want: `{"value":0,"available":true}`},
		{name: "unavailable", value: Of(42, errors.New("db down")), want: `{"value":0,"available":false}`},
		{name: "unavailable with a value", value: Value[float64]{Value: 12.5, Err: errors.New("db down")}, want: `{"value":0,"available":false}`},
		{name: "float", value: Of(87.5, nil), want: `{"value":87.5,"available":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestCount(t *testing.T) {
	ctx := context.Background()

	v := Count(ctx, func(context.Context) (int, error) { return 7, nil })
	assert.True(t, v.Available())
	assert.Equal(t, 7, v.Or(-1))

	v = Count(ctx, func(context.Context) (int, error) { return 0, errors.New("timeout") })
	assert.False(t, v.Available())
	assert.Equal(t, -1, v.Or(-1))
}

func TestUnavailable(t *testing.T) {
	names := Unavailable(map[string]interface{ Available() bool }{
		"users":    Of(3, nil),
		"invoices": Of(0, errors.New("x")),
		"rate":     Of(0.0, errors.New("y")),
		"absences": Of(0, errors.New("z")),
	})
	assert.Equal(t, []string{"absences", "invoices", "rate"}, names)
}
