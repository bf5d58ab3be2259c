package service

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunpodAddress(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantURL  string
		wantPod  string
		wantPath string
	}{
		{
			name:    "bare pod id",
			raw:     "abc123xyz",
			wantURL: "https://api.runpod.ai/v2/abc123xyz",
			wantPod: "abc123xyz",
		},
		{
			name:    "pod id with run suffix",
			raw:     "abc123xyz/run",
			wantURL: "https://api.runpod.ai/v2/abc123xyz",
			wantPod: "abc123xyz",
		},
		{
			name:     "full api url with route",
			raw:      "https://api.runpod.ai/v2/abc123xyz/generate",
			wantURL:  "https://api.runpod.ai/v2/abc123xyz",
			wantPod:  "abc123xyz",
			wantPath: "/generate",
		},
		{
			name:    "localhost variant",
			raw:     "localhost:8000/abc123xyz/run",
			wantURL: "http://localhost:8000",
			wantPod: "abc123xyz",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseAddress(tc.raw, SpecRunpod)
			require.NoError(t, err)
			assert.Equal(t, AddressRunpod, addr.Kind)
			assert.Equal(t, tc.wantURL, addr.URL)
			assert.Equal(t, tc.wantPod, addr.PodID)
			assert.Equal(t, tc.wantPath, addr.Path)
		})
	}
}

func TestParseRunpodAddressTrimsRunSuffixOnly(t *testing.T) {
	// A pod id ending in run-letters must survive; only the literal "/run"
	// segment is removed.
	addr, err := ParseAddress("podidrun", SpecRunpod)
	require.NoError(t, err)
	assert.Equal(t, "podidrun", addr.PodID)
}

func TestParseReplicateAddress(t *testing.T) {
	cases := []struct {
		name        string
		raw         string
		wantModel   string
		wantVersion string
	}{
		{"user/model shorthand", "stability-ai/sdxl", "stability-ai/sdxl", ""},
		{"user/model:version", "stability-ai/sdxl:39ed52f2", "stability-ai/sdxl", "39ed52f2"},
		{"model url", "https://api.replicate.com/v1/models/stability-ai/sdxl", "stability-ai/sdxl", ""},
		{"predictions url", "https://api.replicate.com/v1/predictions/39ed52f2", "", "39ed52f2"},
		{"bare version hash", "39ed52f2aaba556fe42db66b0f88b51df2e19236a78e685d94edd0b2a5f6bca4", "", "39ed52f2aaba556fe42db66b0f88b51df2e19236a78e685d94edd0b2a5f6bca4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseAddress(tc.raw, SpecReplicate)
			require.NoError(t, err)
			assert.Equal(t, AddressReplicate, addr.Kind)
			assert.Equal(t, tc.wantModel, addr.ModelName)
			assert.Equal(t, tc.wantVersion, addr.Version)
			assert.NotEmpty(t, addr.URL)
		})
	}
}

func TestParseAddressKinds(t *testing.T) {
	socaity, err := ParseAddress("https://api.socaity.ai/v1", "")
	require.NoError(t, err)
	assert.Equal(t, AddressSocaity, socaity.Kind)

	handle, err := ParseAddress("stability-ai/sdxl:39ed52f2", "")
	require.NoError(t, err)
	assert.Equal(t, AddressReplicate, handle.Kind, "model handles need no hint")

	generic, err := ParseAddress("my-host.example.com/api", "")
	require.NoError(t, err)
	assert.Equal(t, AddressGeneric, generic.Kind)
	assert.Equal(t, "http://my-host.example.com/api", generic.URL)

	_, err = ParseAddress("   ", "")
	assert.Error(t, err)
}

func TestParseAddressIdempotent(t *testing.T) {
	// parse(parse(u).url) must equal parse(u) for every accepted input.
	reparse := func(raw string, hint Specification) bool {
		first, err := ParseAddress(raw, hint)
		if err != nil {
			return true
		}
		second, err := ParseAddress(first.URL, hint)
		if err != nil {
			return false
		}
		return *first == *second
	}

	properties := gopter.NewProperties(nil)
	properties.Property("runpod shorthands", prop.ForAll(
		func(pod string) bool { return reparse(pod, SpecRunpod) && reparse(pod+"/run", SpecRunpod) },
		gen.RegexMatch(`[a-z0-9]{6,14}`),
	))
	properties.Property("replicate model handles", prop.ForAll(
		func(user, model, version string) bool {
			return reparse(user+"/"+model, SpecReplicate) && reparse(user+"/"+model+":"+version, SpecReplicate)
		},
		gen.RegexMatch(`[a-z][a-z0-9-]{2,10}`),
		gen.RegexMatch(`[a-z][a-z0-9-]{2,10}`),
		gen.RegexMatch(`[a-f0-9]{8}`),
	))
	properties.TestingRun(t)
}
