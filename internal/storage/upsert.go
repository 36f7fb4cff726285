package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VishalVarwani/waterproject/internal/apperrors"
	"github.com/VishalVarwani/waterproject/internal/entity"
)

// UpsertWaterbody stores wb under its (client, name, type) identity.
//
// A new identity is inserted as is. An existing row is locked, merged with
// entity.MergeWaterbody and written back, so confidence never decreases and
// provenance only grows. The stored entity is returned.
func UpsertWaterbody(ctx context.Context, tx Tx, wb entity.Waterbody) (entity.Waterbody, error) {
	wb = wb.Normalize()
	if wb.ID == "" {
		wb.ID = uuid.NewString()
	}
	inserted, err := tx.InsertWaterbody(ctx, wb)
	if err != nil {
		return entity.Waterbody{}, fmt.Errorf("insert waterbody: %w", err)
	}
	if inserted {
		return wb, nil
	}

	existing, err := tx.LockWaterbody(ctx, wb.ClientID, wb.Name, wb.Type)
	if err != nil {
		return entity.Waterbody{}, fmt.Errorf("lock waterbody: %w", err)
	}
	merged := entity.MergeWaterbody(existing, wb)
	merged.NeedsConfirmation = wb.NeedsConfirmation
	merged.Evidence = wb.Evidence
	if err := tx.UpdateWaterbody(ctx, merged); err != nil {
		return entity.Waterbody{}, fmt.Errorf("update waterbody: %w", err)
	}
	return merged, nil
}

// UpsertSamplingPoint stores sp under its (client, code) identity with
// fill-if-absent semantics. Callers apply preset coordinates beforehand.
func UpsertSamplingPoint(ctx context.Context, tx Tx, sp entity.SamplingPoint) (entity.SamplingPoint, error) {
	sp.Code = entity.SiteCode(sp.Code)
	if sp.Code == "" {
		return entity.SamplingPoint{}, fmt.Errorf("sampling point code is empty: %w", apperrors.ErrPrecondition)
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	inserted, err := tx.InsertSamplingPoint(ctx, sp)
	if err != nil {
		return entity.SamplingPoint{}, fmt.Errorf("insert sampling point %q: %w", sp.Code, err)
	}
	if inserted {
		return sp, nil
	}

	existing, err := tx.LockSamplingPoint(ctx, sp.ClientID, sp.Code)
	if err != nil {
		return entity.SamplingPoint{}, fmt.Errorf("lock sampling point %q: %w", sp.Code, err)
	}
	merged := entity.MergeSamplingPoint(existing, sp)
	if merged == existing {
		return existing, nil
	}
	if err := tx.UpdateSamplingPoint(ctx, merged); err != nil {
		return entity.SamplingPoint{}, fmt.Errorf("update sampling point %q: %w", sp.Code, err)
	}
	return merged, nil
}

// RegisterDataset returns the dataset for d.
//
// With a fingerprint, an existing dataset of the same client carrying it is
// reused and only its uploaded_at is refreshed; created is false. A
// fingerprint held by another client's dataset is apperrors.ErrPrecondition.
// Without a fingerprint, a new dataset is always inserted.
func RegisterDataset(ctx context.Context, tx Tx, d Dataset) (id string, created bool, err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	inserted, err := tx.InsertDataset(ctx, d)
	if err != nil {
		return "", false, fmt.Errorf("insert dataset: %w", err)
	}
	if inserted {
		return d.ID, true, nil
	}
	if d.Fingerprint == "" {
		return "", false, fmt.Errorf("dataset %s was not inserted", d.ID)
	}

	existing, err := tx.DatasetByFingerprint(ctx, d.ClientID, d.Fingerprint)
	if IsNotFound(err) {
		return "", false, fmt.Errorf("fingerprint %s belongs to another client: %w", d.Fingerprint, apperrors.ErrPrecondition)
	}
	if err != nil {
		return "", false, fmt.Errorf("find dataset by fingerprint: %w", err)
	}
	if err := tx.TouchDataset(ctx, existing, d.UploadedAt); err != nil {
		return "", false, fmt.Errorf("touch dataset: %w", err)
	}
	return existing, false, nil
}

// IsNotFound reports whether err is apperrors.ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, apperrors.ErrNotFound) }
