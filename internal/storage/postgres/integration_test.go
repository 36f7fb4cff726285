package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/VishalVarwani/waterproject/internal/entity"
	"github.com/VishalVarwani/waterproject/internal/storage"
	"github.com/VishalVarwani/waterproject/internal/vocab"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "water",
			"POSTGRES_USER":     "water",
			"POSTGRES_PASSWORD": "water",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://water:water@%s:%s/water?sslmode=disable", host, port.Port())
}

func TestRepo_Integration_IdempotentWrites(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: Kind, DSN: dsn})
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx))

	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	ingest := func() (inserted int64, wb entity.Waterbody) {
		err := repo.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			require.NoError(t, tx.UpsertClient(ctx, storage.Client{ID: "c1", Email: "lab@example.com"}))

			var err error
			wb, err = storage.UpsertWaterbody(ctx, tx, entity.Waterbody{
				ClientID: "c1", Name: "Neusa", Type: vocab.WaterbodyReservoir,
				Confidence: 0.8, Provenance: []string{entity.SourceLLM},
			})
			require.NoError(t, err)

			sp, err := storage.UpsertSamplingPoint(ctx, tx, entity.SamplingPoint{ClientID: "c1", Code: "E1", WaterbodyID: wb.ID})
			require.NoError(t, err)

			ph, _ := vocab.Default().Parameter("ph")
			require.NoError(t, tx.UpsertParameters(ctx, []vocab.Parameter{ph}))
			require.NoError(t, tx.EnsureMetaFields(ctx, []string{"site"}))
			ids, err := tx.ParameterIDs(ctx, []string{"ph"})
			require.NoError(t, err)

			dsID, _, err := storage.RegisterDataset(ctx, tx, storage.Dataset{
				ClientID: "c1", WaterbodyID: wb.ID, FileName: "a.csv", Fingerprint: "fp-1",
			})
			require.NoError(t, err)

			v := 7.2
			inserted, err = tx.InsertMeasurements(ctx, storage.WithRowHash([]storage.Measurement{
				{DatasetID: dsID, SamplingPointID: sp.ID, ParameterID: ids["ph"], TS: &ts, Value: &v, SourceColumn: "pH"},
				{DatasetID: dsID, SamplingPointID: sp.ID, ParameterID: ids["ph"], SourceColumn: "pH", QualityFlag: vocab.FlagMissing},
			}))
			return err
		})
		require.NoError(t, err)
		return inserted, wb
	}

	n1, wb1 := ingest()
	n2, wb2 := ingest()
	assert.Equal(t, int64(2), n1)
	assert.Equal(t, int64(0), n2)
	assert.Equal(t, wb1.ID, wb2.ID)

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		c, err := tx.Counts(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, storage.Counts{Waterbodies: 1, SamplingPoints: 1, Datasets: 1, Measurements: 2}, c)
		return nil
	}))
}
