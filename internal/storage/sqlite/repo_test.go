package sqlite

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VishalVarwani/waterproject/internal/apperrors"
	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/storage"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

func openMemory(t *testing.T) storage.Repository {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: Kind, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func fp(v float64) *float64 { return &v }

func withClient(t *testing.T, repo storage.Repository, fn func(ctx context.Context, tx storage.Tx) error) {
	t.Helper()
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if err := tx.UpsertClient(ctx, storage.Client{ID: "c1", Email: "lab@example.com"}); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
	require.NoError(t, err)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)
	require.NoError(t, repo.EnsureSchema(context.Background()))
}

func TestUpsertWaterbody_MergesExisting(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)

	withClient(t, repo, func(ctx context.Context, tx storage.Tx) error {
		first, err := storage.UpsertWaterbody(ctx, tx, entity.Waterbody{
			ClientID: "c1", Name: "Embalse  Tominé", Type: "reservoir",
			Confidence: 0.4, Provenance: []string{entity.SourceLLM},
		})
		require.NoError(t, err)

		second, err := storage.UpsertWaterbody(ctx, tx, entity.Waterbody{
			ClientID: "c1", Name: "Embalse Tominé", Type: "RESERVOIR",
			Confidence: 0.7, Provenance: []string{entity.SourceFallback},
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 0.7, second.Confidence)
		assert.ElementsMatch(t, []string{entity.SourceLLM, entity.SourceFallback}, second.Provenance)

		third, err := storage.UpsertWaterbody(ctx, tx, entity.Waterbody{
			ClientID: "c1", Name: "Embalse Tominé", Type: "reservoir", Confidence: 0.1,
		})
		require.NoError(t, err)
		assert.Equal(t, 0.7, third.Confidence, "confidence never decreases")

		locked, err := tx.LockWaterbody(ctx, "c1", "Embalse Tominé", vocab.WaterbodyReservoir)
		require.NoError(t, err)
		assert.Equal(t, 0.7, locked.Confidence)
		assert.Len(t, locked.Provenance, 2)

		c, err := tx.Counts(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.Waterbodies)
		return nil
	})
}

func TestUpsertSamplingPoint_FillIfAbsent(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)

	withClient(t, repo, func(ctx context.Context, tx storage.Tx) error {
		a, err := storage.UpsertSamplingPoint(ctx, tx, entity.SamplingPoint{
			ClientID: "c1", Code: " E1 ", Lat: fp(6.10),
		})
		require.NoError(t, err)
		assert.Equal(t, "E1", a.Code)

		b, err := storage.UpsertSamplingPoint(ctx, tx, entity.SamplingPoint{
			ClientID: "c1", Code: "E1", Name: "E1", Lat: fp(9.99), Lon: fp(-73.5),
		})
		require.NoError(t, err)
		assert.Equal(t, a.ID, b.ID)
		require.NotNil(t, b.Lat)
		assert.Equal(t, 6.10, *b.Lat)
		require.NotNil(t, b.Lon)
		assert.Equal(t, -73.5, *b.Lon)

		got, err := tx.LockSamplingPoint(ctx, "c1", "E1")
		require.NoError(t, err)
		assert.Equal(t, "E1", got.Name)
		assert.Equal(t, 6.10, *got.Lat)
		assert.Equal(t, -73.5, *got.Lon)
		assert.Nil(t, got.Depth)

		_, err = tx.LockSamplingPoint(ctx, "c1", "nope")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		_, err = storage.UpsertSamplingPoint(ctx, tx, entity.SamplingPoint{ClientID: "c1", Code: "   "})
		assert.ErrorIs(t, err, apperrors.ErrPrecondition)
		return nil
	})
}

func TestRegisterDataset_FingerprintReuse(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	withClient(t, repo, func(ctx context.Context, tx storage.Tx) error {
		d := storage.Dataset{ClientID: "c1", FileName: "a.csv", RowCount: 3, ColCount: 4, Fingerprint: "abc", UploadedAt: t0}
		id1, created, err := storage.RegisterDataset(ctx, tx, d)
		require.NoError(t, err)
		assert.True(t, created)

		d.UploadedAt = t0.Add(time.Hour)
		id2, created, err := storage.RegisterDataset(ctx, tx, d)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, id1, id2)

		// No fingerprint: always a new dataset.
		d.Fingerprint = ""
		id3, created, err := storage.RegisterDataset(ctx, tx, d)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, id1, id3)

		ok, err := tx.DatasetExists(ctx, "c1", id3)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.DatasetExists(ctx, "other", id3)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
}

func TestRegisterDataset_FingerprintOfAnotherClient(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)

	withClient(t, repo, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.UpsertClient(ctx, storage.Client{ID: "c2", Email: "other@example.com"}))

		_, _, err := storage.RegisterDataset(ctx, tx, storage.Dataset{ClientID: "c1", FileName: "a.csv", Fingerprint: "abc"})
		require.NoError(t, err)

		_, _, err = storage.RegisterDataset(ctx, tx, storage.Dataset{ClientID: "c2", FileName: "a.csv", Fingerprint: "abc"})
		assert.ErrorIs(t, err, apperrors.ErrPrecondition)

		_, err = tx.DatasetByFingerprint(ctx, "c2", "abc")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		return nil
	})
}

func TestLatestDataset_OrdersByUploadTime(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	withClient(t, repo, func(ctx context.Context, tx storage.Tx) error {
		wb, err := storage.UpsertWaterbody(ctx, tx, entity.Waterbody{ClientID: "c1", Name: "Neusa", Type: "reservoir"})
		require.NoError(t, err)

		_, err = tx.LatestDataset(ctx, "c1", wb.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		// 10:00:00.5 sorts after 10:00:00 only with fixed-width fractions.
		late, _, err := storage.RegisterDataset(ctx, tx, storage.Dataset{
			ClientID: "c1", WaterbodyID: wb.ID, FileName: "b.csv", UploadedAt: t0.Add(500 * time.Millisecond),
		})
		require.NoError(t, err)
		_, _, err = storage.RegisterDataset(ctx, tx, storage.Dataset{
			ClientID: "c1", WaterbodyID: wb.ID, FileName: "a.csv", UploadedAt: t0,
		})
		require.NoError(t, err)

		got, err := tx.LatestDataset(ctx, "c1", wb.ID)
		require.NoError(t, err)
		assert.Equal(t, late, got)
		return nil
	})
}

func TestInsertMeasurements_RepeatInsertsNothing(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)
	reg := vocab.Default()
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var first, second int64
	withClient(t, repo, func(ctx context.Context, tx storage.Tx) error {
		ph, _ := reg.Parameter("ph")
		temp, _ := reg.Parameter("temperature")
		require.NoError(t, tx.UpsertParameters(ctx, []vocab.Parameter{ph, temp}))
		require.NoError(t, tx.UpsertParameters(ctx, []vocab.Parameter{ph}))
		require.NoError(t, tx.EnsureMetaFields(ctx, []string{"site", "site"}))

		ids, err := tx.ParameterIDs(ctx, []string{"ph", "temperature", "mystery"})
		require.NoError(t, err)
		require.Len(t, ids, 2)

		dsID, _, err := storage.RegisterDataset(ctx, tx, storage.Dataset{ClientID: "c1", FileName: "a.csv"})
		require.NoError(t, err)

		ms := storage.WithRowHash([]storage.Measurement{
			{DatasetID: dsID, ParameterID: ids["ph"], TS: &ts, Value: fp(7.1), Unit: "unitless", SourceColumn: "pH", Method: "harmonized"},
			{DatasetID: dsID, ParameterID: ids["temperature"], TS: &ts, Value: fp(20), Unit: "C", SourceColumn: "Temp", Method: "harmonized"},
			{DatasetID: dsID, ParameterID: ids["ph"], SourceColumn: "pH", QualityFlag: vocab.FlagMissing},
		})
		first, err = tx.InsertMeasurements(ctx, ms)
		require.NoError(t, err)
		second, err = tx.InsertMeasurements(ctx, ms)
		require.NoError(t, err)

		c, err := tx.Counts(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), c.Measurements)
		assert.Equal(t, int64(1), c.Datasets)
		return nil
	})
	assert.Equal(t, int64(3), first)
	assert.Equal(t, int64(0), second)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)
	boom := errors.New("boom")

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.UpsertClient(ctx, storage.Client{ID: "c1", Email: "lab@example.com"}))
		_, err := storage.UpsertWaterbody(ctx, tx, entity.Waterbody{ClientID: "c1", Name: "Neusa"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, repo.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		c, err := tx.Counts(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, storage.Counts{}, c)
		return nil
	}))
}

func TestInserts_OnlyIgnoreNaturalKeyConflicts(t *testing.T) {
	t.Parallel()
	repo := openMemory(t)

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.UpsertClient(ctx, storage.Client{ID: "c1", Email: "lab@example.com"}))

		ok, err := tx.InsertDataset(ctx, storage.Dataset{ID: "d1", ClientID: "c1", FileName: "a.csv", Fingerprint: "fa", UploadedAt: time.Now()})
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = tx.InsertDataset(ctx, storage.Dataset{ID: "d2", ClientID: "c1", FileName: "a.csv", Fingerprint: "fa", UploadedAt: time.Now()})
		require.NoError(t, err)
		assert.False(t, ok, "same fingerprint is a natural-key repeat")

		_, err = tx.InsertDataset(ctx, storage.Dataset{ID: "d1", ClientID: "c1", FileName: "b.csv", Fingerprint: "fb", UploadedAt: time.Now()})
		assert.Error(t, err, "primary key clash must surface")

		_, err = tx.InsertWaterbody(ctx, entity.Waterbody{ID: "w1", ClientID: "c1", Name: "Neusa", Type: "reservoir"})
		require.NoError(t, err)
		_, err = tx.InsertWaterbody(ctx, entity.Waterbody{ID: "w1", ClientID: "c1", Name: "Tomine", Type: "reservoir"})
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestBuildInsertMeasurementsSQL_Shape(t *testing.T) {
	t.Parallel()
	ms := []storage.Measurement{{DatasetID: "d", RowHash: "h1"}, {DatasetID: "d", RowHash: "h2"}}

	q, args := buildInsertMeasurementsSQL(ms)
	assert.True(t, strings.HasPrefix(q, "INSERT INTO measurements ("))
	assert.True(t, strings.HasSuffix(q, " ON CONFLICT (row_hash) DO NOTHING"))
	assert.Equal(t, 2*len(measurementColumns), strings.Count(q, "?"))
	assert.Len(t, args, 2*len(measurementColumns))
	assert.Nil(t, args[3], "absent ts binds NULL")
	assert.Equal(t, "h2", args[len(args)-1])
}

func TestFormatTime_SortsLexically(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("COT", -5*3600))
	in := []time.Time{base.Add(time.Second), base.Add(10 * time.Millisecond), base, base.Add(-time.Hour)}

	got := make([]string, len(in))
	for i, tm := range in {
		got[i] = formatTime(tm)
	}
	sort.Strings(got)
	assert.Equal(t, []string{
		formatTime(base.Add(-time.Hour)),
		formatTime(base),
		formatTime(base.Add(10 * time.Millisecond)),
		formatTime(base.Add(time.Second)),
	}, got)
	assert.Equal(t, "2024-01-02T08:04:05.000000000Z", formatTime(base))
}
