package document

import (
	"errors"
	"fmt"

	"github.com/rflechner/marmotte/binary"
	"github.com/rflechner/marmotte/errs"
)

// Encode serializes a value tree into the tagged wire format.
func Encode(v Value) []byte {
	w := binary.NewWriter(encodedSizeHint(v))
	encodeValue(w, v)

	return w.Bytes()
}

// Decode deserializes a tagged document. The top-level value must be an
// object (tag 6); anything else is rejected.
func Decode(data []byte) (Value, error) {
	r := binary.NewReader(data)

	tag, err := r.ReadU8()
	if err != nil {
		return Value{}, fmt.Errorf("%w: empty document", errs.ErrTruncated)
	}
	if Kind(tag) != KindObject {
		return Value{}, fmt.Errorf("%w: top-level value must be an object, got tag %d", errs.ErrCorrupted, tag)
	}

	v, err := decodeObjectBody(r)
	if err != nil {
		return Value{}, err
	}

	return v, nil
}

func encodeValue(w *binary.Writer, v Value) {
	w.WriteU8(byte(v.kind))

	switch v.kind {
	case KindNull:
		// Empty body.
	case KindBool:
		w.WriteBool(v.b)
	case KindInt64:
		w.WriteI64(v.n)
	case KindFloat:
		w.WriteF64(v.f)
	case KindText:
		w.WriteString(v.s)
	case KindArray:
		w.WriteU64(uint64(len(v.items)))
		for _, item := range v.items {
			encodeValue(w, item)
		}
	case KindObject:
		w.WriteU64(uint64(len(v.props)))
		for _, p := range v.props {
			w.WriteString(p.Name)
			encodeValue(w, p.Value)
		}
	}
}

func decodeValue(r *binary.Reader) (Value, error) {
	tag, err := r.ReadU8()
	if err != nil {
		return Value{}, truncated(err)
	}

	kind := Kind(tag)
	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.ReadBool()
		if err != nil {
			return Value{}, truncated(err)
		}

		return Bool(b), nil
	case KindInt64:
		n, err := r.ReadI64()
		if err != nil {
			return Value{}, truncated(err)
		}

		return Int(n), nil
	case KindFloat:
		f, err := r.ReadF64()
		if err != nil {
			return Value{}, truncated(err)
		}

		return Float(f), nil
	case KindText:
		s, err := r.ReadString()
		if err != nil {
			return Value{}, truncated(err)
		}

		return Text(s), nil
	case KindArray:
		count, err := r.ReadU64()
		if err != nil {
			return Value{}, truncated(err)
		}
		items := make([]Value, 0, boundedCapacity(count, r.Remaining()))
		for i := uint64(0); i < count; i++ {
			item, err := decodeValue(r)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}

		return Array(items...), nil
	case KindObject:
		return decodeObjectBody(r)
	default:
		return Value{}, errs.UnknownTag(tag)
	}
}

func decodeObjectBody(r *binary.Reader) (Value, error) {
	count, err := r.ReadU64()
	if err != nil {
		return Value{}, truncated(err)
	}

	props := make([]Property, 0, boundedCapacity(count, r.Remaining()))
	for i := uint64(0); i < count; i++ {
		name, err := r.ReadString()
		if err != nil {
			return Value{}, fmt.Errorf("cannot read property name: %w", truncated(err))
		}
		value, err := decodeValue(r)
		if err != nil {
			return Value{}, fmt.Errorf("property %q: %w", name, err)
		}
		props = append(props, Property{Name: name, Value: value})
	}

	return Object(props...), nil
}

// truncated maps buffer underruns to the on-disk truncation error so
// callers see one error kind for short documents.
func truncated(err error) error {
	if errors.Is(err, errs.ErrUnderRun) {
		return fmt.Errorf("%w: %s", errs.ErrTruncated, err)
	}

	return err
}

// boundedCapacity caps a declared element count by what the remaining
// bytes could possibly hold, so corrupt counts cannot force huge
// allocations. Every element occupies at least one tag byte.
func boundedCapacity(declared uint64, remaining int) int {
	if declared > uint64(remaining) {
		return remaining
	}

	return int(declared)
}

func encodedSizeHint(v Value) int {
	switch v.kind {
	case KindText:
		return len(v.s) + 16
	case KindObject:
		return 64 * (len(v.props) + 1)
	case KindArray:
		return 32 * (len(v.items) + 1)
	default:
		return 16
	}
}
