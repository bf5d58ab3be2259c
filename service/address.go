package service

import (
	"fmt"
	"net/url"
	"strings"
)

// AddressKind tags the provider family of a service address.
type AddressKind string

const (
	AddressGeneric   AddressKind = "generic"
	AddressSocaity   AddressKind = "socaity"
	AddressRunpod    AddressKind = "runpod"
	AddressReplicate AddressKind = "replicate"
)

// Address is the tagged-variant service address. URL is always non-empty,
// scheme-prefixed and stripped of trailing slashes. The provider-specific
// fields are only set for the matching kind.
type Address struct {
	Kind AddressKind
	URL  string

	// Runpod
	PodID string
	Path  string

	// Replicate
	ModelName string
	Version   string
}

const (
	runpodAPIBase        = "https://api.runpod.ai/v2"
	replicateAPIBase     = "https://api.replicate.com/v1"
	replicateModelsBase  = replicateAPIBase + "/models"
	replicatePredictions = replicateAPIBase + "/predictions"
)

// ParseAddress classifies and normalizes a raw service address. The hint,
// when non-empty, forces the provider family; otherwise it is inferred from
// the URL shape.
func ParseAddress(raw string, hint Specification) (*Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty service address")
	}

	switch {
	case hint == SpecRunpod, strings.Contains(raw, "api.runpod.ai"), looksLikePodID(raw):
		return parseRunpodAddress(raw)
	case hint == SpecReplicate, strings.Contains(raw, "api.replicate.com"), looksLikeModelHandle(raw):
		return parseReplicateAddress(raw)
	case strings.Contains(raw, "socaity.ai") || hint == SpecSocaity:
		return &Address{Kind: AddressSocaity, URL: sanitizeURL(raw)}, nil
	}
	return &Address{Kind: AddressGeneric, URL: sanitizeURL(raw)}, nil
}

// MustParseAddress is ParseAddress for known-good inputs; it panics on error.
func MustParseAddress(raw string, hint Specification) *Address {
	addr, err := ParseAddress(raw, hint)
	if err != nil {
		panic(err)
	}
	return addr
}

// sanitizeURL coerces a missing scheme to http:// and strips surrounding
// slashes.
func sanitizeURL(raw string) string {
	raw = strings.Trim(strings.TrimSpace(raw), "/")
	if raw == "" {
		return raw
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	return raw
}

// looksLikePodID recognizes the Runpod shorthand forms "pod_id" and
// "pod_id/run": a bare token with no scheme and no host-like dots.
func looksLikePodID(raw string) bool {
	if strings.Contains(raw, "http") || strings.Contains(raw, ".") || strings.Contains(raw, ":") {
		return false
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return false
	}
	parts := strings.Split(trimmed, "/")
	return len(parts) == 1 || (len(parts) == 2 && parts[1] == "run")
}

// looksLikeModelHandle recognizes the Replicate "user/model[:version]"
// shorthand: two slash-separated tokens with no scheme and no host-like dots.
func looksLikeModelHandle(raw string) bool {
	if strings.Contains(raw, "http") || strings.Contains(raw, ".") {
		return false
	}
	name, _, _ := strings.Cut(raw, ":")
	parts := strings.Split(strings.Trim(name, "/"), "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// parseRunpodAddress reduces every accepted Runpod shorthand to the
// (url, podId, path) triple. Accepted forms:
//
//	pod_id
//	pod_id/run
//	https://api.runpod.ai/v2/pod_id[/route...]
//	localhost:port/pod_id[/run]
func parseRunpodAddress(raw string) (*Address, error) {
	full := strings.Trim(raw, "/")
	if !strings.Contains(full, "http") {
		if strings.Contains(full, "localhost") {
			full = "http://" + full
		} else {
			full = runpodAPIBase + "/" + full
		}
	}
	parsed, err := url.Parse(full)
	if err != nil {
		return nil, fmt.Errorf("parse runpod address %q: %w", raw, err)
	}

	path := strings.Trim(parsed.Path, "/")
	path = strings.TrimPrefix(path, "v2/")
	path = strings.TrimPrefix(path, "v2")
	// Suffix removal only: trimming the "/run" character set would eat
	// trailing r/u/n letters of a pod id.
	path = strings.TrimSuffix(path, "/run")
	if path == "run" {
		path = ""
	}

	addr := &Address{Kind: AddressRunpod}
	if strings.Contains(parsed.Host, "api.runpod.ai") {
		podID, rest, _ := strings.Cut(path, "/")
		addr.PodID = podID
		if rest != "" {
			addr.Path = "/" + rest
		}
		addr.URL = fmt.Sprintf("%s://%s/v2/%s", parsed.Scheme, parsed.Host, podID)
	} else {
		podID, rest, _ := strings.Cut(path, "/")
		addr.PodID = podID
		if rest != "" {
			addr.Path = "/" + rest
		}
		addr.URL = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	}
	if addr.PodID == "" {
		return nil, fmt.Errorf("runpod address %q has no pod id", raw)
	}
	return addr, nil
}

// parseReplicateAddress reduces every accepted Replicate shorthand to the
// (url, modelName, version) triple. Accepted forms:
//
//	user/model
//	user/model:version
//	https://api.replicate.com/v1/models/user/model[:version]
//	https://api.replicate.com/v1/predictions/version
//	a bare 64-char version hash
func parseReplicateAddress(raw string) (*Address, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "/")

	switch {
	case strings.HasPrefix(raw, replicateModelsBase):
		rest := strings.Trim(strings.TrimPrefix(raw, replicateModelsBase), "/")
		rest = strings.TrimSuffix(rest, "/predictions")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) < 2 {
			return nil, fmt.Errorf("parse replicate url %q: missing user/model", raw)
		}
		user, model := parts[0], parts[1]
		version := ""
		if name, ver, ok := strings.Cut(model, ":"); ok {
			model, version = name, ver
		}
		return &Address{
			Kind:      AddressReplicate,
			URL:       replicateModelURL(user+"/"+model, version),
			ModelName: user + "/" + model,
			Version:   version,
		}, nil

	case strings.HasPrefix(raw, replicatePredictions):
		version := strings.Trim(strings.TrimPrefix(raw, replicatePredictions), "/")
		addr := &Address{Kind: AddressReplicate, URL: replicatePredictions, Version: version}
		if version != "" {
			addr.URL += "/" + version
		}
		return addr, nil

	case strings.Contains(raw, "/"):
		// user/model[:version] shorthand.
		modelName := raw
		version := ""
		if name, ver, ok := strings.Cut(raw, ":"); ok {
			modelName, version = name, ver
		}
		return &Address{
			Kind:      AddressReplicate,
			URL:       replicateModelURL(modelName, version),
			ModelName: modelName,
			Version:   version,
		}, nil

	default:
		// Bare version hash. The version stays in the URL so re-parsing a
		// parsed address loses nothing.
		return &Address{Kind: AddressReplicate, URL: replicatePredictions + "/" + raw, Version: raw}, nil
	}
}

// replicateModelURL builds the model-scoped predictions URL. The version is
// kept in the URL so that re-parsing a parsed address loses nothing.
func replicateModelURL(modelName, version string) string {
	u := replicateModelsBase + "/" + modelName
	if version != "" {
		u += ":" + version
	}
	return u + "/predictions"
}

// RunBaseURL returns the Runpod base URL without a trailing /run segment.
func (a *Address) RunBaseURL() string {
	return strings.TrimSuffix(strings.TrimRight(a.URL, "/"), "/run")
}
