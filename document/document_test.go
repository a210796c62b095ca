package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPropertyValueTopLevel(t *testing.T) {
	doc := mustParse(t, `
	{
		"name": "John Doe",
		"age": 43,
		"id": "id-4687"
	}`)

	r := PropertyValues(doc, "name")

	require.Len(t, r, 1)
	require.Equal(t, "John Doe", r[0].Text())
}

func TestPropertyValueLevel2(t *testing.T) {
	doc := mustParse(t, `
	{
		"name": "John Doe",
		"message": {
		  "title": "hello !",
		  "text": "How are you ?"
		},
		"age": 43,
		"id": "id-4687"
	}`)

	r := PropertyValues(doc, "message.title")

	require.Len(t, r, 1)
	require.Equal(t, "hello !", r[0].Text())
}

func TestPropertyValueFlattensArrays(t *testing.T) {
	doc := mustParse(t, `
	{
		"name": "John Doe",
		"messages": [
		  { "id": 1, "title": "hello !", "text": "How are you ?" },
		  { "id": 2, "title": "hello 2 !", "text": "How are you 2 ?" },
		  { "id": 3, "text": "How are you 3 ?" },
		  { "id": 4, "title": "hello 4 !", "text": "How are you 4 ?" }
		],
		"age": 43,
		"id": "id-4687"
	}`)

	r := PropertyValues(doc, "messages.title")

	require.Len(t, r, 3, "the message without a title contributes nothing")
	require.Equal(t, "hello !", r[0].Text())
	require.Equal(t, "hello 2 !", r[1].Text())
	require.Equal(t, "hello 4 !", r[2].Text())
}

func TestPropertyValueLevel3(t *testing.T) {
	doc := mustParse(t, `
	{
		"name": "John Doe",
		"message": {
		  "title": "hello !",
		  "text": "How are you ?",
		  "meta": {
		    "deleted": true,
		    "readcount": 2
		  }
		},
		"age": 43,
		"id": "id-4687"
	}`)

	r := PropertyValues(doc, "message.meta.deleted")

	require.Len(t, r, 1)
	require.True(t, r[0].Bool())
}

func TestPropertyValueMissingPath(t *testing.T) {
	doc := mustParse(t, `{"name": "John Doe"}`)

	require.Empty(t, PropertyValues(doc, "does.not.exist"))
}

func TestFindIDString(t *testing.T) {
	id, ok := FindID([]byte(`
	{
		"name": "John Doe",
		"age": 43,
		"id": "id-4687"
	}`))

	require.True(t, ok)
	require.Equal(t, "id-4687", id)
}

func TestFindIDNumber(t *testing.T) {
	id, ok := FindID([]byte(`
	{
		"name": "John Doe",
		"age": 43,
		"id": 4687
	}`))

	require.True(t, ok)
	require.Equal(t, "4687", id)
}

func TestFindIDInvalidJSON(t *testing.T) {
	_, ok := FindID([]byte(`
	{
		"name": "John Doe",
		"age": 43,
		"id": 4687sa
	}`))

	require.False(t, ok)
}

func TestFindIDMissing(t *testing.T) {
	_, ok := FindID([]byte(`
	{
		"name": "John Doe",
		"age": 43
	}`))

	require.False(t, ok)
}

func TestHash64IsStable(t *testing.T) {
	require.Equal(t, Hash64("id-4687"), Hash64("id-4687"))
	require.NotEqual(t, Hash64("id-4687"), Hash64("id-4688"))
}
