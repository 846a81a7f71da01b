package llm

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTextMessages(t *testing.T) {
	msgs := TextMessages("What is 2+2?", "")
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, DefaultSystemPrompt, msgs[0].Text)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, "What is 2+2?", msgs[1].Text)
	assert.Empty(t, msgs[1].Parts)

	msgs = TextMessages("hi", "Be terse.")
	assert.Equal(t, "Be terse.", msgs[0].Text)
}

func TestResponseFormatFor(t *testing.T) {
	assert.Nil(t, ResponseFormatFor(nil))

	def := &SchemaDefinition{Name: "AddressExtractor", Schema: &jsonschema.Schema{Type: "object"}}
	rf := ResponseFormatFor(def)
	require.NotNil(t, rf)
	b, err := json.Marshal(rf)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "json_schema", m["type"])
	js := m["json_schema"].(map[string]any)
	assert.Equal(t, "AddressExtractor", js["name"])
	assert.NotContains(t, js, "description")
	assert.Equal(t, "object", js["schema"].(map[string]any)["type"])
}

func TestSchemaDefinitionValidate(t *testing.T) {
	var nilDef *SchemaDefinition
	assert.NoError(t, nilDef.Validate())
	assert.ErrorIs(t, (&SchemaDefinition{Schema: &jsonschema.Schema{}}).Validate(), ErrBadSchemaDefinition)
	assert.ErrorIs(t, (&SchemaDefinition{Name: "x"}).Validate(), ErrBadSchemaDefinition)
	assert.NoError(t, (&SchemaDefinition{Name: "x", Schema: &jsonschema.Schema{}}).Validate())
}

func TestVisionMessage(t *testing.T) {
	img := []byte{0xFF, 0xD8, 0x01}
	msg, err := VisionMessage("Describe this image.",
		ImageInput{Data: img},
		ImageInput{Data: img, MIMEType: "image/png"},
		ImageInput{URL: "https://example.com/page1.jpg"},
	)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, msg.Role)
	require.Len(t, msg.Parts, 4)
	assert.Equal(t, TextPart("Describe this image."), msg.Parts[0])
	b64 := base64.StdEncoding.EncodeToString(img)
	assert.Equal(t, ImagePart("data:image/jpeg;base64,"+b64), msg.Parts[1])
	assert.Equal(t, ImagePart("data:image/png;base64,"+b64), msg.Parts[2])
	assert.Equal(t, ImagePart("https://example.com/page1.jpg"), msg.Parts[3])
	assert.True(t, msg.HasImage())
}

func TestVisionMessage_CallerErrors(t *testing.T) {
	_, err := VisionMessage("  ", ImageInput{URL: "https://example.com/a.jpg"})
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = VisionMessage("prompt")
	assert.ErrorIs(t, err, ErrNoImages)

	_, err = VisionMessage("prompt", ImageInput{})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestUnwrap(t *testing.T) {
	log := zap.NewNop()

	assert.Equal(t, `{"a":1}`, Unwrap(log, StringContent(`{"a":1}`), false))
	assert.Equal(t, map[string]any{"a": float64(1)}, Unwrap(log, StringContent(`{"a":1}`), true))
	assert.Equal(t, map[string]any{"a": float64(1)}, Unwrap(log, StringContent("```json\n{\"a\":1}\n```"), true))

	assert.Equal(t, map[string]any{"b": "x"}, Unwrap(log, WrappedContent(`{"b":"x"}`), true))
	assert.Equal(t, "not json", Unwrap(log, WrappedContent("not json"), true))
	assert.Equal(t, TextWrapper{Type: "text", Text: "plain"}, Unwrap(log, WrappedContent("plain"), false))

	obj := map[string]any{"already": true}
	assert.Equal(t, obj, Unwrap(log, ObjectContent(obj), true))
	assert.Equal(t, obj, Unwrap(log, ObjectContent(obj), false))
}

func TestUnwrap_MalformedJSONReturnsOriginal(t *testing.T) {
	for _, s := range []string{"{not json", "", "Sure! Here is the JSON: {", "[1,2"} {
		assert.NotPanics(t, func() {
			assert.Equal(t, s, Unwrap(nil, StringContent(s), true))
		})
	}
}

func TestUnwrap_IdempotentOnParsed(t *testing.T) {
	for _, c := range []Content{
		StringContent(`{"report":"ok","n":[1,2]}`),
		WrappedContent(`{"k":"v"}`),
		ObjectContent(map[string]any{"x": "y"}),
		StringContent("plain text"),
	} {
		once := Unwrap(nil, c, true)
		twice := Unwrap(nil, ContentFromValue(once), true)
		assert.Equal(t, once, twice)
	}
}

func TestDecodeContent(t *testing.T) {
	c := DecodeContent(json.RawMessage(`"hello"`))
	assert.Equal(t, ContentString, c.Kind)
	assert.Equal(t, "hello", c.Text)

	c = DecodeContent(json.RawMessage(`{"type":"text","text":"{\"a\":1}"}`))
	assert.Equal(t, ContentTextWrapper, c.Kind)
	assert.Equal(t, `{"a":1}`, c.Text)

	c = DecodeContent(json.RawMessage(`{"a":1}`))
	assert.Equal(t, ContentObject, c.Kind)
	assert.Equal(t, map[string]any{"a": float64(1)}, c.Object)

	c = DecodeContent(json.RawMessage(`null`))
	assert.Equal(t, ContentString, c.Kind)
	assert.Empty(t, c.Text)
}

func TestExtractContent(t *testing.T) {
	c, err := ExtractContent([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, StringContent("hi"), c)

	c, err = ExtractContent([]byte(`{"completion_message":{"role":"assistant","content":{"type":"text","text":"yo"}}}`))
	require.NoError(t, err)
	assert.Equal(t, WrappedContent("yo"), c)

	_, err = ExtractContent([]byte(`{"choices":[]}`))
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = ExtractContent([]byte(`nope`))
	assert.Error(t, err)
}

func TestEnginesGetEngine(t *testing.T) {
	llama := &stubEngine{name: "llama"}
	e := &Engines{Llama: llama}

	got, err := e.GetEngine("")
	require.NoError(t, err)
	assert.Same(t, llama, got)

	got, err = e.GetEngine("OpenAI")
	require.NoError(t, err)
	assert.Same(t, llama, got)

	_, err = e.GetEngine("gemini")
	assert.Error(t, err)

	_, err = e.GetEngine("claude")
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestContentString(t *testing.T) {
	assert.Equal(t, "a", StringContent("a").String())
	assert.Equal(t, "b", WrappedContent("b").String())
	assert.Equal(t, `{"c":1}`, ObjectContent(map[string]int{"c": 1}).String())
	assert.Equal(t, "text_wrapper", ContentTextWrapper.String())
}

func TestImageInputDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,AQI=", ImageInput{Data: []byte{1, 2}}.DataURL())
	assert.Equal(t, "data:image/png;base64,AQI=", ImageInput{Data: []byte{1, 2}, MIMEType: "image/png"}.DataURL())
	assert.Equal(t, "https://x/y.png", ImageInput{URL: "https://x/y.png", Data: []byte{1}}.DataURL())
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "ééé...", truncate("ééééé", 3))
	assert.Equal(t, "héllo", truncate("héllo", 10))
}

func TestUnwrap_WarningIsValidUTF8(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bad := strings.Repeat("é", 600)
	assert.Equal(t, bad, Unwrap(zap.New(core), StringContent(bad), true))
	require.Equal(t, 1, logs.Len())
	logged := logs.All()[0].ContextMap()["content"].(string)
	assert.True(t, utf8.ValidString(logged))
	assert.Equal(t, strings.Repeat("é", 512)+"...", logged)
}

func TestUnwrap_UnknownKindIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	got := Unwrap(zap.New(core), Content{Kind: ContentKind(42), Text: "raw"}, true)
	assert.Equal(t, "raw", got)
	entries := logs.FilterMessage("unknown content kind").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "unknown", entries[0].ContextMap()["kind"])
}
