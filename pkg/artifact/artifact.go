// Package artifact defines the canonical data model shared by the
// Agent, Worker, and Registry planes: artifacts, sources, steps, and
// the digest rules that make them content-addressed.
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

// System is the closed set of target platforms an artifact can build for.
type System string

const (
	SystemUnknown      System = "UnknownSystem"
	SystemAarch64Linux System = "Aarch64Linux"
	SystemAarch64Macos System = "Aarch64Macos"
	SystemX8664Linux   System = "X8664Linux"
	SystemX8664Macos   System = "X8664Macos"
)

// ParseSystem validates a wire string against the closed System enum.
func ParseSystem(s string) System {
	switch System(s) {
	case SystemAarch64Linux, SystemAarch64Macos, SystemX8664Linux, SystemX8664Macos:
		return System(s)
	default:
		return SystemUnknown
	}
}

// Source is a named input to an artifact: local files or a fetched URL.
type Source struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Includes []string `json:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty"`
	Digest   string   `json:"digest,omitempty"`
}

// StepSecret carries a secret value through PrepareArtifact; plaintext
// on the wire into the agent, ciphertext in the canonical record.
type StepSecret struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Step is one sandboxed shell invocation in an artifact's build.
type Step struct {
	Entrypoint   string       `json:"entrypoint,omitempty"`
	Arguments    []string     `json:"arguments,omitempty"`
	Environments []string     `json:"environments,omitempty"`
	Artifacts    []string     `json:"artifacts,omitempty"`
	Secrets      []StepSecret `json:"secrets,omitempty"`
	Script       string       `json:"script,omitempty"`
}

// Artifact is the canonical, digest-addressed build declaration.
type Artifact struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Sources []Source `json:"sources,omitempty"`
	Steps   []Step   `json:"steps,omitempty"`
	Systems []System `json:"systems,omitempty"`
	Target  System   `json:"target"`
}

// CanonicalJSON serializes the artifact with sorted object keys so the
// byte representation — and therefore its digest — depends only on
// content, never on field declaration order. encoding/json already
// emits struct fields in a fixed (declaration) order and map keys
// sorted, which together with the fixed schema above is sufficient for
// determinism; we still route through a canonical re-marshal so that
// any future map-typed field stays sorted automatically.
func (a *Artifact) CanonicalJSON() ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "marshal artifact", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "canonicalize artifact", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "canonicalize artifact", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// encodeCanonical writes v as JSON with map keys sorted at every level.
func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// Digest computes the SHA-256 hex digest of the artifact's canonical JSON.
func (a *Artifact) Digest() (string, error) {
	canon, err := a.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Validate enforces the minimal structural invariants the worker's
// BuildArtifact step 1 requires before anything else runs.
func (a *Artifact) Validate(hostTarget System) error {
	if a.Name == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "artifact name is missing")
	}
	if len(a.Steps) == 0 {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "artifact has no steps")
	}
	if a.Target == SystemUnknown || a.Target == "" {
		return vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "artifact target system is unknown")
	}
	if hostTarget != "" && a.Target != hostTarget {
		return vorpalerrors.Newf(vorpalerrors.ErrCodeInvalidArgument, "artifact target %s does not match worker system %s", a.Target, hostTarget)
	}
	return nil
}
