package document

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/rflechner/marmotte/errs"
)

var valueComparer = cmp.Comparer(func(a, b Value) bool { return a.Equal(b) })

func mustParse(t *testing.T, payload string) Value {
	t.Helper()
	v, err := Parse([]byte(payload))
	require.NoError(t, err)

	return v
}

func TestKindTags(t *testing.T) {
	require.Equal(t, byte(0), byte(KindNull))
	require.Equal(t, byte(1), byte(KindBool))
	require.Equal(t, byte(2), byte(KindInt64))
	require.Equal(t, byte(3), byte(KindFloat))
	require.Equal(t, byte(4), byte(KindText))
	require.Equal(t, byte(5), byte(KindArray))
	require.Equal(t, byte(6), byte(KindObject))
}

func TestEncodeDecodeSimplePayload(t *testing.T) {
	doc := mustParse(t, `
	{
		"name": "John Doe",
		"age": 48,
		"activated": true
	}`)

	decoded, err := Decode(Encode(doc))
	require.NoError(t, err)

	name, ok := decoded.Property("name")
	require.True(t, ok)
	require.Equal(t, "John Doe", name.Text())

	age, ok := decoded.Property("age")
	require.True(t, ok)
	require.Equal(t, int64(48), age.Int64())

	activated, ok := decoded.Property("activated")
	require.True(t, ok)
	require.True(t, activated.Bool())
}

func TestEncodeDecodePayloadWithIntArray(t *testing.T) {
	doc := mustParse(t, `
	{
		"name": "John Doe",
		"age": 48,
		"activated": true,
		"messageIds": [1234, 998]
	}`)

	decoded, err := Decode(Encode(doc))
	require.NoError(t, err)

	ids, ok := decoded.Property("messageIds")
	require.True(t, ok)
	require.Equal(t, KindArray, ids.Kind())
	require.Len(t, ids.Items(), 2)
	require.Equal(t, int64(1234), ids.Items()[0].Int64())
	require.Equal(t, int64(998), ids.Items()[1].Int64())
}

func TestEncodeDecodeNestedObjectArray(t *testing.T) {
	doc := mustParse(t, `
	{
	  "id": 9800,
	  "Name": "John Doe",
	  "Age": 35,
	  "messages": [
	      { "title": "Hello", "text": "ca va" },
	      { "title": "Bye", "text": "yes" }
	  ]
	}`)

	decoded, err := Decode(Encode(doc))
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(doc, decoded, valueComparer))

	id, ok := decoded.Property("id")
	require.True(t, ok)
	require.Equal(t, int64(9800), id.Int64())

	messages, ok := decoded.Property("messages")
	require.True(t, ok)
	require.Len(t, messages.Items(), 2)

	first := messages.Items()[0]
	require.Equal(t, KindObject, first.Kind())
	require.Len(t, first.Properties(), 2)
	title, _ := first.Property("title")
	require.Equal(t, "Hello", title.Text())

	titles := PropertyValues(decoded, "messages.title")
	require.Len(t, titles, 2)
	require.Equal(t, "Hello", titles[0].Text())
	require.Equal(t, "Bye", titles[1].Text())
}

func TestRoundTripPreservesPropertyOrder(t *testing.T) {
	doc := Object(
		Prop("zulu", Int(1)),
		Prop("alpha", Int(2)),
		Prop("mike", Int(3)),
	)

	decoded, err := Decode(Encode(doc))
	require.NoError(t, err)

	props := decoded.Properties()
	require.Equal(t, "zulu", props[0].Name)
	require.Equal(t, "alpha", props[1].Name)
	require.Equal(t, "mike", props[2].Name)
}

func TestRoundTripAllKinds(t *testing.T) {
	doc := Object(
		Prop("null", Null()),
		Prop("boolTrue", Bool(true)),
		Prop("boolFalse", Bool(false)),
		Prop("intMin", Int(math.MinInt64)),
		Prop("intMax", Int(math.MaxInt64)),
		Prop("float", Float(98.5)),
		Prop("pi", Float(math.Pi)),
		Prop("text", Text("héllo wörld")),
		Prop("empty", Text("")),
		Prop("mixed", Array(Null(), Bool(true), Int(-7), Float(0.25), Text("x"), Array(), Object())),
		Prop("nested", Object(Prop("inner", Array(Int(1), Int(2))))),
	)

	decoded, err := Decode(Encode(doc))
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(doc, decoded, valueComparer))
}

func TestDecodeRejectsNonObjectTopLevel(t *testing.T) {
	payload := Encode(Object())
	payload[0] = byte(KindArray)

	_, err := Decode(payload)
	require.ErrorIs(t, err, errs.ErrCorrupted)
}

func TestDecodeUnknownTag(t *testing.T) {
	doc := Object(Prop("x", Int(1)))
	payload := Encode(doc)

	// The tag of property "x" sits after the object tag, the property
	// count and the encoded name.
	tagOffset := 1 + 8 + 8 + len("x")
	payload[tagOffset] = 42

	_, err := Decode(payload)
	require.ErrorIs(t, err, errs.ErrUnknownTag)
}

func TestDecodeTruncated(t *testing.T) {
	payload := Encode(Object(Prop("name", Text("John Doe")), Prop("age", Int(48))))

	for _, cut := range []int{0, 1, 5, len(payload) / 2, len(payload) - 1} {
		_, err := Decode(payload[:cut])
		require.Error(t, err, "cut at %d", cut)
		require.ErrorIs(t, err, errs.ErrTruncated, "cut at %d", cut)
	}
}

func TestParseNumbers(t *testing.T) {
	doc := mustParse(t, `{"i": 42, "neg": -13, "f": 98.5, "exp": 1e3, "big": 18446744073709551615}`)

	i, _ := doc.Property("i")
	require.Equal(t, KindInt64, i.Kind())
	require.Equal(t, int64(42), i.Int64())

	neg, _ := doc.Property("neg")
	require.Equal(t, int64(-13), neg.Int64())

	f, _ := doc.Property("f")
	require.Equal(t, KindFloat, f.Kind())
	require.Equal(t, 98.5, f.Float64())

	exp, _ := doc.Property("exp")
	require.Equal(t, KindFloat, exp.Kind())

	big, _ := doc.Property("big")
	require.Equal(t, KindFloat, big.Kind(), "numbers beyond int64 fall back to float")
}

func TestParseAcceptsHumanJSON(t *testing.T) {
	doc, err := Parse([]byte(`
	{
		// trailing commas and comments are tolerated on ingest
		"name": "John Doe",
		"age": 43,
	}`))
	require.NoError(t, err)

	name, ok := doc.Property("name")
	require.True(t, ok)
	require.Equal(t, "John Doe", name.Text())
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"id": 4687sa}`))
	require.Error(t, err)
}
