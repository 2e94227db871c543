// Package api defines the wire message types shared by the Archive,
// Artifact, Agent, and Worker RPC services. Each service's generated
// client/server stubs live in its own subpackage (api/archive,
// api/artifactsvc, api/agent, api/worker) in the shape grpc-go's
// protoc-gen-go-grpc plugin would emit, but hand-written against the
// plain Go structs below via the rpcjson codec rather than protobuf.
package api

import "github.com/vorpalbuild/vorpal/pkg/artifact"

// ArchivePullRequest is used for both Archive.Check and Archive.Pull.
type ArchivePullRequest struct {
	Namespace string `json:"namespace"`
	Digest    string `json:"digest"`
}

// ArchivePushRequest is one chunk of a client-streamed Archive.Push call.
type ArchivePushRequest struct {
	Namespace string `json:"namespace"`
	Digest    string `json:"digest"`
	Data      []byte `json:"data"`
}

// ArchivePullResponse is one chunk of a server-streamed Archive.Pull call.
type ArchivePullResponse struct {
	Data []byte `json:"data"`
}

// ArchiveResponse is the terminal response for Check and Push.
type ArchiveResponse struct {
	Digest string `json:"digest"`
}

// ArtifactRequest fetches a single canonical artifact record.
type ArtifactRequest struct {
	Namespace string `json:"namespace"`
	Digest    string `json:"digest"`
}

// GetArtifactAliasRequest resolves an alias to a digest.
type GetArtifactAliasRequest struct {
	Namespace string `json:"namespace"`
	System    string `json:"system"`
	Name      string `json:"name"`
	Tag       string `json:"tag"`
}

// GetArtifactAliasResponse carries the resolved digest.
type GetArtifactAliasResponse struct {
	Digest string `json:"digest"`
}

// StoreArtifactRequest publishes a canonical artifact and its aliases.
type StoreArtifactRequest struct {
	Artifact          *artifact.Artifact `json:"artifact"`
	ArtifactAliases   []string           `json:"artifact_aliases,omitempty"`
	ArtifactNamespace string             `json:"artifact_namespace"`
}

// ArtifactResponse carries the digest a StoreArtifact call resolved to.
type ArtifactResponse struct {
	Digest string `json:"digest"`
}

// PrepareArtifactRequest is the Agent.PrepareArtifact request.
type PrepareArtifactRequest struct {
	Artifact         *artifact.Artifact `json:"artifact"`
	ArtifactContext  string             `json:"artifact_context"`
	ArtifactUpdate   bool               `json:"artifact_update"`
	Registry         string             `json:"registry"`
}

// PrepareArtifactResponse is one message of the Agent.PrepareArtifact stream.
type PrepareArtifactResponse struct {
	ArtifactOutput string              `json:"artifact_output,omitempty"`
	Artifact       *artifact.Artifact  `json:"artifact,omitempty"`
	ArtifactDigest string              `json:"artifact_digest,omitempty"`
}

// BuildArtifactRequest is the Worker.BuildArtifact request.
type BuildArtifactRequest struct {
	Artifact          *artifact.Artifact `json:"artifact"`
	ArtifactAliases   []string           `json:"artifact_aliases,omitempty"`
	ArtifactNamespace string             `json:"artifact_namespace"`
	Registry          string             `json:"registry"`
}

// BuildArtifactResponse is one message of the Worker.BuildArtifact stream.
type BuildArtifactResponse struct {
	Output string `json:"output"`
}
