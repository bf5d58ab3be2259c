package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterMediaDetection(t *testing.T) {
	image := Parameter{Name: "image", Definitions: []ParamDefinition{
		{Type: TypeString, Format: FormatImage},
		{Type: TypeString, Format: FormatFile},
	}}
	assert.True(t, image.IsMedia())
	assert.Equal(t, FormatImage, image.MediaFormat())

	text := Parameter{Name: "text", Definitions: []ParamDefinition{{Type: TypeString}}}
	assert.False(t, text.IsMedia())
	assert.Equal(t, FormatNone, text.MediaFormat())

	uri := Parameter{Name: "link", Definitions: []ParamDefinition{{Type: TypeString, Format: FormatURI}}}
	assert.False(t, uri.IsMedia(), "uri references are not file content")
}

func TestEndpointHTTPMethodDefaultsToPost(t *testing.T) {
	assert.Equal(t, "POST", (&Endpoint{}).HTTPMethod())
	assert.Equal(t, "GET", (&Endpoint{Method: "get"}).HTTPMethod())
}

func TestDefinitionEndpointLookup(t *testing.T) {
	def := &Definition{Endpoints: []Endpoint{
		{ID: "tts", Path: "/tts"},
		{ID: "post_generate_image", Path: "/generate/image"},
	}}

	require.NotNil(t, def.Endpoint("tts"))
	assert.Equal(t, "/tts", def.Endpoint("tts").Path)
	require.NotNil(t, def.Endpoint("/tts"))
	require.NotNil(t, def.Endpoint("tts/"), "trailing slash tolerated")
	require.NotNil(t, def.Endpoint("generate_image"), "normalized path matches")
	assert.Nil(t, def.Endpoint("missing"))
}

func TestEnsureIdentity(t *testing.T) {
	def := &Definition{Endpoints: []Endpoint{{Path: "/img2img", Method: "post"}}}
	def.EnsureIdentity()

	assert.NotEmpty(t, def.ID)
	assert.Contains(t, def.DisplayName, "unnamed_service_")
	assert.False(t, def.CreatedAt.IsZero())
	assert.Equal(t, "post_img2img", def.Endpoints[0].ID)

	// Identity is stable across repeated calls.
	id := def.ID
	def.EnsureIdentity()
	assert.Equal(t, id, def.ID)
}

func TestEndpointID(t *testing.T) {
	assert.Equal(t, "post_img2img", EndpointID("POST", "/img2img"))
	assert.Equal(t, "get_models_list", EndpointID("get", "/models/list"))
	assert.Equal(t, "post_predict", EndpointID("", "/predict"))
}
