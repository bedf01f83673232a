package handlers

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/onboardkit/semos/pkg/canonicalize"
	"github.com/onboardkit/semos/pkg/contracts"
)

// UpsertDoc stores document metadata (not its bytes — those live in an
// ArtifactStore) keyed by (cbu_id, doc_type), replacing the prior
// version's pointer on update.
func UpsertDoc(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	cbuID, cerr := requireString(args, "cbu")
	if cerr != nil {
		return nil, cerr
	}
	docType, cerr := requireString(args, "doc_type")
	if cerr != nil {
		return nil, cerr
	}
	artifactDigest := optionalString(args, "artifact_digest")

	id := uuid.NewString()
	var returned string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO documents (doc_id, cbu_id, doc_type, artifact_digest)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cbu_id, doc_type) DO UPDATE SET artifact_digest = EXCLUDED.artifact_digest
		RETURNING doc_id
	`, id, cbuID, docType, artifactDigest).Scan(&returned)
	if err != nil {
		return nil, dbErr("upsert_doc", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: returned}, nil
}

// AttachEvidence records a piece of evidence (e.g. a screening hit
// disposition, a manual review note) against a case, content-hashed via
// the same RFC 8785 canonicalization used for registry snapshots so two
// sheets attaching the same evidence payload dedupe naturally.
func AttachEvidence(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	caseID, cerr := requireString(args, "case_id")
	if cerr != nil {
		return nil, cerr
	}
	note := optionalString(args, "note")

	hash, err := canonicalize.CanonicalHash(args)
	if err != nil {
		return nil, contracts.NewCodedError(contracts.CodeInternalError, "hashing evidence payload", err)
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO evidence (evidence_id, case_id, note, content_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash) DO NOTHING
	`, id, caseID, note, hash)
	if err != nil {
		return nil, dbErr("attach_evidence", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: id}, nil
}
