package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOps(t *testing.T) {
	ops, err := parseOps([]string{"put:a=1", "get:a", "delete:b", "put:c=", "put:d=x=y"})
	require.NoError(t, err)
	assert.Equal(t, []op{
		{kind: opPut, key: "a", value: "1"},
		{kind: opGet, key: "a"},
		{kind: opDelete, key: "b"},
		{kind: opPut, key: "c", value: ""},
		{kind: opPut, key: "d", value: "x=y"},
	}, ops)

	invalid := []string{"get", "get:", "put:a", "put:=1", "scan:a", ""}
	for _, arg := range invalid {
		t.Run(arg, func(t *testing.T) {
			_, err := parseOps([]string{arg})
			assert.Error(t, err)
		})
	}
}

func TestParseTxnID(t *testing.T) {
	testCases := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"1", 1, false},
		{"4294967295", 4294967295, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"4294967296", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseTxnID(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
