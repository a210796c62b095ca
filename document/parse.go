package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tailscale/hujson"
)

// Parse decodes a JSON document into a Value tree, preserving object
// property order. Input is standardized first, so human-edited payloads
// with comments or trailing commas are accepted.
//
// Numbers become Int64 when they fit an int64 losslessly, Float otherwise.
func Parse(data []byte) (Value, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return Value{}, fmt.Errorf("document: invalid JSON: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(std))
	dec.UseNumber()

	v, err := parseNext(dec)
	if err != nil {
		return Value{}, err
	}

	// Anything after the first value is garbage.
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("document: trailing data after JSON value")
	}

	return v, nil
}

func parseNext(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("document: invalid JSON: %w", err)
	}

	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return Value{}, fmt.Errorf("document: unexpected delimiter %q", t)
		}
	case string:
		return Text(t), nil
	case json.Number:
		return numberValue(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("document: unexpected token %v", tok)
	}
}

func parseObject(dec *json.Decoder) (Value, error) {
	var props []Property
	for dec.More() {
		nameTok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("document: invalid JSON: %w", err)
		}
		name, ok := nameTok.(string)
		if !ok {
			return Value{}, fmt.Errorf("document: object key is not a string")
		}

		value, err := parseNext(dec)
		if err != nil {
			return Value{}, err
		}
		props = append(props, Property{Name: name, Value: value})
	}
	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return Value{}, fmt.Errorf("document: invalid JSON: %w", err)
	}

	return Object(props...), nil
}

func parseArray(dec *json.Decoder) (Value, error) {
	var items []Value
	for dec.More() {
		item, err := parseNext(dec)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
	// Consume the closing ']'.
	if _, err := dec.Token(); err != nil {
		return Value{}, fmt.Errorf("document: invalid JSON: %w", err)
	}

	return Array(items...), nil
}

func numberValue(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return Int(i)
	}
	f, err := n.Float64()
	if err != nil {
		// Unreachable for tokens produced by encoding/json.
		return Null()
	}

	return Float(f)
}
