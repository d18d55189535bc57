// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package municipality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegistry = `{
  "municipalidades": [
    {
      "provincia": "San José",
      "municipalidades": [
        {"nombre": "Municipalidad de San José", "ubicacion": {"canton": "Central"}},
        {"nombre": "Concejo Municipal de Distrito de Carmen", "ubicacion": {"canton": "Central", "distrito": "Carmen"}},
        {"nombre": "Municipalidad de Escazú", "ubicacion": {"canton": "Escazú"}}
      ]
    },
    {
      "provincia": "Puntarenas",
      "municipalidades": [
        {"nombre": "Concejo Municipal de Distrito de Paquera", "ubicacion": {"canton": "Puntarenas", "distrito": "Paquera"}},
        {"nombre": "Concejo Municipal de Distrito de Cóbano", "ubicacion": {"canton": "Puntarenas", "distrito": "Cóbano"}}
      ]
    },
    {
      "provincia": "Heredia",
      "municipalidades": [
        {"nombre": "Municipalidad de Heredia", "ubicacion": {"canton": "Heredia"}}
      ]
    }
  ]
}`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r, err := Parse([]byte(testRegistry))
	require.NoError(t, err)

	return r
}

func TestParse(t *testing.T) {
	r := newTestRegistry(t)

	assert.Equal(t, 6, r.Len())
	assert.Equal(t, []string{"Heredia", "Puntarenas", "San José"}, r.Provinces())

	all := r.All()
	require.Len(t, all, 6)
	assert.Equal(t, Record{
		Name:     "Concejo Municipal de Distrito de Carmen",
		Province: "San José",
		Canton:   "Central",
		District: "Carmen",
	}, all[1])
	assert.Empty(t, all[0].District)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"not json":         `{`,
		"no provinces":     `{"municipalidades": []}`,
		"unnamed province": `{"municipalidades": [{"provincia": "", "municipalidades": []}]}`,
		"no canton":        `{"municipalidades": [{"provincia": "Limón", "municipalidades": [{"nombre": "X", "ubicacion": {}}]}]}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"Alajuela", "Cartago", "Guanacaste", "Heredia", "Limón", "Puntarenas", "San José"}, r.Provinces())

	cantonLevel := 0

	for _, rec := range r.All() {
		if rec.District == "" {
			cantonLevel++
		}
	}

	assert.Equal(t, 84, cantonLevel)
	assert.Greater(t, r.Len(), cantonLevel)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(testRegistry), 0o600))

	r, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 6, r.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
