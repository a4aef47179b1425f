package urlenc

import (
	"net/url"
	"testing"

	"oss.terrastruct.com/util-go/assert"
)

func TestBasic(t *testing.T) {
	const script = `x -> y
I just forgot my whole philosophy of life!!!: {
  s: TV is chewing gum for the eyes
}
`

	encoded, err := Encode(script)
	assert.Success(t, err)

	decoded, err := Decode(encoded)
	assert.Success(t, err)

	assert.String(t, script, decoded)
}

func TestPlayURL(t *testing.T) {
	u, err := PlayURL("a -> b", 200, true)
	assert.Success(t, err)

	parsed, err := url.Parse(u)
	assert.Success(t, err)
	assert.String(t, "play.d2lang.com", parsed.Host)
	assert.String(t, "200", parsed.Query().Get("theme"))
	assert.String(t, "1", parsed.Query().Get("sketch"))

	script, err := Decode(parsed.Query().Get("script"))
	assert.Success(t, err)
	assert.String(t, "a -> b", script)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode("%%%")
	assert.True(t, err != nil)
}
