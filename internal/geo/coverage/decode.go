package coverage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Entry is one country of a coverage object.
type Entry struct {
	Code  string
	Value any
}

// Countries is a coverage object with its country keys in declared order.
type Countries []Entry

// Decode reads one JSON coverage declaration. A top-level object decodes to
// Countries so its keys keep document order; any other value decodes as
// encoding/json would with UseNumber. Numbers nested inside stay json.Number.
func Decode(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		var v any
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode coverage: %w", err)
		}
		return v, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode coverage: %w", err)
	}
	countries := Countries{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode coverage: %w", err)
		}
		code, ok := tok.(string)
		if !ok {
			return nil, errors.New("decode coverage: object key is not a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode coverage %q: %w", code, err)
		}
		countries = countries.set(code, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode coverage: %w", err)
	}
	return countries, nil
}

// set keeps the first position of a repeated key and its last value, as
// encoding/json does for maps.
func (c Countries) set(code string, value any) Countries {
	for i := range c {
		if c[i].Code == code {
			c[i].Value = value
			return c
		}
	}
	return append(c, Entry{Code: code, Value: value})
}
