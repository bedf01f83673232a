package interfaces

// Artifact is a canonicalized, content-addressed data object — the
// materialised form of a sheet result, decision record, or viewport
// manifest once it has been hashed for storage.
type Artifact struct {
	// SchemaID identifies the JSON schema used to validate the content.
	SchemaID string `json:"schema_id"`

	// ContentType is the MIME type of the content.
	ContentType string `json:"content_type"`

	// CanonicalBytes is the JCS (RFC 8785) canonical byte representation.
	CanonicalBytes []byte `json:"canonical_bytes"`

	// Digest is the content hash, formatted "sha256:<hex>".
	Digest string `json:"digest"`

	// Preview is a deterministic, truncated human-readable rendering.
	Preview string `json:"preview"`

	// Metadata carries stable, key-sorted tags (e.g. "cbu_id", "sheet_id").
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ArtifactStore persists and retrieves content-addressed artifacts.
type ArtifactStore interface {
	// Store persists an artifact and returns its digest. Implementations
	// must verify the digest matches CanonicalBytes before storing.
	Store(artifact *Artifact) (string, error)

	// Get retrieves an artifact by digest.
	Get(digest string) (*Artifact, error)

	// Exists reports whether an artifact exists for digest.
	Exists(digest string) (bool, error)
}
