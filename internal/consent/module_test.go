package consent_test

import (
	"errors"
	"testing"

	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModules(t *testing.T) {
	got, err := consent.ParseModules([]string{"health", "financial", "health"})
	require.NoError(t, err)
	assert.Equal(t, []consent.Module{consent.ModuleHealth, consent.ModuleFinancial}, got)
}

func TestParseModules_AllModules(t *testing.T) {
	got, err := consent.ParseModules([]string{"identity", "health", "financial", "property", "assets"})
	require.NoError(t, err)
	assert.Equal(t, consent.Modules, got)
}

func TestParseModules_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		in          []string
		wantInvalid []string
	}{
		{"empty", nil, nil},
		{"unknown", []string{"health", "genome", "dna"}, []string{"genome", "dna"}},
		{"wrong case", []string{"Health"}, []string{"Health"}},
		{"blank", []string{""}, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := consent.ParseModules(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, consent.ErrInvalidModuleSet))

			var ime *consent.InvalidModuleSetError
			require.ErrorAs(t, err, &ime)
			assert.Equal(t, tt.wantInvalid, ime.Invalid)
		})
	}
}

func TestInvalidModuleSetError_NamesOffenders(t *testing.T) {
	_, err := consent.ParseModules([]string{"genome"})
	assert.Contains(t, err.Error(), "genome")
	assert.Contains(t, err.Error(), "identity, health, financial, property, assets")
}
