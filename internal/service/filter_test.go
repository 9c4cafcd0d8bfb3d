package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellnesslog/internal/db"
)

func TestParseLegacyFilter(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []db.FilterClause
	}{
		{
			name: "empty",
			expr: "   ",
			want: nil,
		},
		{
			name: "single equality",
			expr: "meal_type = 'breakfast'",
			want: []db.FilterClause{{Field: "meal_type", Op: "eq", Value: "breakfast"}},
		},
		{
			name: "and with numbers",
			expr: "meal_type = 'breakfast' AND calories >= 100",
			want: []db.FilterClause{
				{Field: "meal_type", Op: "eq", Value: "breakfast"},
				{Field: "calories", Op: "gte", Value: 100.0},
			},
		},
		{
			name: "lowercase and, not equal variants",
			expr: "Activity_Type <> 'walk' and steps != -1",
			want: []db.FilterClause{
				{Field: "activity_type", Op: "ne", Value: "walk"},
				{Field: "steps", Op: "ne", Value: -1.0},
			},
		},
		{
			name: "in list",
			expr: "meal_type IN ('lunch', 'dinner') AND fat_g < 20.5",
			want: []db.FilterClause{
				{Field: "meal_type", Op: "in", Value: []any{"lunch", "dinner"}},
				{Field: "fat_g", Op: "lt", Value: 20.5},
			},
		},
		{
			name: "escaped quote",
			expr: "food_name = 'chef''s salad'",
			want: []db.FilterClause{{Field: "food_name", Op: "eq", Value: "chef's salad"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLegacyFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLegacyFilterRejectsUnsupportedSyntax(t *testing.T) {
	inputs := []string{
		"meal_type = 'breakfast' OR 1 = 1",
		"meal_type = 'breakfast'; DROP TABLE meal_tracking",
		"meal_type = breakfast",
		"meal_type LIKE '%fast'",
		"meal_type = 'unterminated",
		"calories >",
		"= 100",
		"meal_type IN 'lunch'",
		"meal_type IN ('lunch' 'dinner')",
		"calories = 1.2.3",
		"meal_type = 'a' AND",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseLegacyFilter(input)
			assert.Error(t, err)
		})
	}
}
