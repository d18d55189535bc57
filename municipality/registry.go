// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

// Package municipality maps administrative labels to the municipal body
// responsible for them.
package municipality

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/mireportec/mireportec/utils/textutils"
)

//go:embed data/municipalidades.json
var defaultRegistry []byte

// Record is a municipal body. District is empty for canton-level bodies.
type Record struct {
	Name     string `json:"name"`
	Province string `json:"province"`
	Canton   string `json:"canton"`
	District string `json:"district,omitempty"`
}

// Entry is a registry Record along with its normalized labels.
type Entry struct {
	Record

	province string
	canton   string
	district string
}

type province struct {
	name    string
	norm    string
	entries []*Entry
}

// Registry is the read-only list of municipalities grouped by province.
// It is safe for concurrent use.
type Registry struct {
	provinces []*province
}

type registryFile struct {
	Municipalidades []struct {
		Provincia       string `json:"provincia"`
		Municipalidades []struct {
			Nombre    string `json:"nombre"`
			Ubicacion struct {
				Canton   string `json:"canton"`
				Distrito string `json:"distrito"`
			} `json:"ubicacion"`
		} `json:"municipalidades"`
	} `json:"municipalidades"`
}

// Parse builds a Registry out of its JSON document.
func Parse(data []byte) (*Registry, error) {
	var doc registryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry JSON: %w", err)
	}

	if len(doc.Municipalidades) == 0 {
		return nil, errors.New("registry has no provinces")
	}

	r := &Registry{}

	for i, p := range doc.Municipalidades {
		if p.Provincia == "" {
			return nil, fmt.Errorf("province #%d has no name", i)
		}

		prov := &province{name: p.Provincia, norm: textutils.LowerASCIIFolding(p.Provincia)}

		for j, m := range p.Municipalidades {
			if m.Nombre == "" || m.Ubicacion.Canton == "" {
				return nil, fmt.Errorf("%s: municipality #%d needs a name and a canton", p.Provincia, j)
			}

			prov.entries = append(prov.entries, &Entry{
				Record: Record{
					Name:     m.Nombre,
					Province: p.Provincia,
					Canton:   m.Ubicacion.Canton,
					District: m.Ubicacion.Distrito,
				},
				province: prov.norm,
				canton:   textutils.LowerASCIIFolding(m.Ubicacion.Canton),
				district: textutils.LowerASCIIFolding(m.Ubicacion.Distrito),
			})
		}

		r.provinces = append(r.provinces, prov)
	}

	return r, nil
}

// Load reads a registry from a JSON file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by admin
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}

	return Parse(data)
}

// Default returns the registry bundled with the binary.
func Default() (*Registry, error) {
	return Parse(defaultRegistry)
}

// Open loads the registry at path, or the bundled one when path is empty.
func Open(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}

	return Load(path)
}

// All returns every municipality, in registry order.
func (r *Registry) All() []Record {
	var ret []Record

	for _, p := range r.provinces {
		for _, e := range p.entries {
			ret = append(ret, e.Record)
		}
	}

	return ret
}

// Provinces returns the province names sorted alphabetically.
func (r *Registry) Provinces() []string {
	ret := make([]string, 0, len(r.provinces))
	for _, p := range r.provinces {
		ret = append(ret, p.name)
	}

	sort.Strings(ret)

	return ret
}

// Len returns the number of municipalities.
func (r *Registry) Len() int {
	n := 0
	for _, p := range r.provinces {
		n += len(p.entries)
	}

	return n
}

func (r *Registry) province(norm string) *province {
	for _, p := range r.provinces {
		if p.norm == norm {
			return p
		}
	}

	return nil
}
