package kvtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/billing-reporter/internal/flatten"
)

func TestToJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "object", in: `{'including_pending': 100, 'effective_at': '2024-01-01'}`, want: `{"including_pending": 100, "effective_at": "2024-01-01"}`},
		{name: "list", in: `[{'running_balance': 2500}]`, want: `[{"running_balance": 2500}]`},
		{name: "already json", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "apostrophe in value", in: `[{'reason': 'customer's refund'}]`, wantErr: true},
		{name: "python literal", in: `{'invoice_id': None}`, wantErr: true},
		{name: "empty", in: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	doc, err := flatten.Decode([]byte(`[{"amount": -2500, "running_balance": 2500, "invoice_id": null, "final": true, "tags": ["a", "b"]}]`))
	require.NoError(t, err)

	text, err := Encode(doc)
	require.NoError(t, err)
	assert.Equal(t, `[{'amount': -2500, 'running_balance': 2500, 'invoice_id': null, 'final': true, 'tags': ['a', 'b']}]`, text)

	back, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, flatten.Flatten(doc).Map(), flatten.Flatten(back).Map())
}

func TestEncodeStringsWithQuotes(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		want       string
		repairable bool
	}{
		{name: "apostrophe", in: "customer's refund", want: `{'reason': "customer's refund"}`},
		{name: "double quote", in: `the "pro" plan`, want: `{'reason': 'the \"pro\" plan'}`, repairable: true},
		{name: "both", in: `it's "pro"`, want: `{'reason': 'it\'s \"pro\"'}`, repairable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := flatten.NewObject()
			obj.Set("reason", tt.in)

			text, err := Encode(obj)
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)

			_, err = ToJSON(text)
			if tt.repairable {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEncodeUnsupportedValue(t *testing.T) {
	_, err := Encode(map[string]any{"a": 1})
	assert.Error(t, err)
}
