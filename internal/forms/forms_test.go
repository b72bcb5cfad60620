package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSpecVariants(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
		want Field
	}{
		{
			name: "text keeps placeholder",
			spec: Spec{Name: "owner", Type: "TEXT", Placeholder: "Full name", Options: []string{"x"}},
			want: Text{Base: Base{Name: "owner"}, Placeholder: "Full name"},
		},
		{
			name: "signature drops extras",
			spec: Spec{Name: "sig", Type: "signature", Placeholder: "sign", Options: []string{"a"}, Required: true},
			want: Signature{Base: Base{Name: "sig", Required: true}},
		},
		{
			name: "select trims options",
			spec: Spec{Name: "unit", Type: "select", Options: []string{" A ", "", "B"}, Position: 2},
			want: Select{Base: Base{Name: "unit", Position: 2}, Options: []string{"A", "B"}},
		},
		{
			name: "checkbox without options",
			spec: Spec{Name: "agree", Type: "checkbox"},
			want: Checkbox{Base: Base{Name: "agree"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromSpec(tc.spec)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromSpecErrors(t *testing.T) {
	_, err := FromSpec(Spec{Name: "x", Type: "slider"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = FromSpec(Spec{Name: "  ", Type: "text"})
	assert.ErrorIs(t, err, ErrMissingName)

	_, err = FromSpec(Spec{Name: "color", Type: "radio"})
	assert.ErrorIs(t, err, ErrMissingChoice)
}

func TestParseAllOrdersAndRejectsDuplicates(t *testing.T) {
	fields, err := ParseAll([]Spec{
		{Name: "b", Type: "text", Position: 2},
		{Name: "a", Type: "date", Position: 1},
		{Name: "c", Type: "email", Position: 1},
	})
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "a", fields[0].Common().Name)
	assert.Equal(t, "c", fields[1].Common().Name)
	assert.Equal(t, "b", fields[2].Common().Name)

	_, err = ParseAll([]Spec{{Name: "a", Type: "text"}, {Name: "a", Type: "email"}})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestToSpecRoundTripsVariantAttributes(t *testing.T) {
	f := Radio{Base: Base{Name: "vote", Required: true, Position: 3}, Options: []string{"yes", "no"}}
	s := ToSpec(f)
	assert.Equal(t, "radio", s.Type)
	assert.Equal(t, []string{"yes", "no"}, s.Options)
	assert.Empty(t, s.Placeholder)
}
