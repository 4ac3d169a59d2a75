package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"
	"github.com/gowebpki/jcs"
)

// SchemaVersion is the envelope layout written by this build. Envelopes
// with the same major version can be read back.
const SchemaVersion = "1.0.0"

// MaxPayloadSize bounds one archived report.
const MaxPayloadSize = 10 * 1024 * 1024

// Report kinds.
const (
	KindProductReport = "report/product"
	KindActorReport   = "report/actor"
)

var readable = mustConstraint("^" + SchemaVersion)

// ErrIncompatible is returned for envelopes written by an incompatible schema.
var ErrIncompatible = errors.New("archive: incompatible schema version")

// Envelope wraps an archived report.
type Envelope struct {
	Kind          string          `json:"kind"`
	SchemaVersion string          `json:"schema_version"`
	SubjectID     string          `json:"subject_id"`
	Digest        string          `json:"digest,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Archive stores report envelopes in canonical (RFC 8785) form, so the same
// report always lands under the same hash.
type Archive struct {
	store  Store
	logger *slog.Logger
}

// New wraps a Store.
func New(store Store) *Archive {
	return &Archive{store: store, logger: slog.Default().With("component", "archive")}
}

// Put archives payload and returns its content hash.
func (a *Archive) Put(ctx context.Context, kind, subjectID, digest string, payload any) (string, error) {
	if kind == "" {
		return "", errors.New("archive: missing kind")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("archive: marshal payload: %w", err)
	}
	if len(raw) > MaxPayloadSize {
		return "", fmt.Errorf("archive: payload exceeds limit of %d bytes", MaxPayloadSize)
	}

	data, err := json.Marshal(Envelope{
		Kind:          kind,
		SchemaVersion: SchemaVersion,
		SubjectID:     subjectID,
		Digest:        digest,
		Payload:       raw,
	})
	if err != nil {
		return "", fmt.Errorf("archive: marshal envelope: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("archive: canonicalize envelope: %w", err)
	}

	hash, err := a.store.Put(ctx, canonical)
	if err != nil {
		return "", err
	}
	a.logger.InfoContext(ctx, "report archived", "kind", kind, "subject", subjectID, "hash", hash)
	return hash, nil
}

// Get reads an envelope back and rejects incompatible schema versions.
func (a *Archive) Get(ctx context.Context, hash string) (*Envelope, error) {
	data, err := a.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("archive: decode envelope %s: %w", hash, err)
	}
	if err := Compatible(env.SchemaVersion); err != nil {
		return nil, err
	}
	return &env, nil
}

// Compatible reports whether an envelope written with version can be read.
func Compatible(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrIncompatible, version, err)
	}
	if !readable.Check(v) {
		return fmt.Errorf("%w: %s (reader %s)", ErrIncompatible, v, SchemaVersion)
	}
	return nil
}

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}
