package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/chirino/conversation-cache/internal/config"
	"github.com/stretchr/testify/require"
)

type recordingMigrator struct {
	name string
	log  *[]string
	err  error
}

func (m recordingMigrator) Name() string { return m.name }

func (m recordingMigrator) Migrate(context.Context, *config.Config) error {
	*m.log = append(*m.log, m.name)
	return m.err
}

func withPlugins(t *testing.T, ps ...Plugin) {
	t.Helper()
	saved := plugins
	plugins = ps
	t.Cleanup(func() { plugins = saved })
}

func ctxFor(store string, migrate bool) context.Context {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = store
	cfg.DatastoreMigrateAtStart = migrate
	return config.WithContext(context.Background(), &cfg)
}

func TestRunAllRunsOnlyTheSelectedStoreInOrder(t *testing.T) {
	var ran []string
	withPlugins(t,
		Plugin{Store: "sqlite", Order: 200, Migrator: recordingMigrator{name: "late", log: &ran}},
		Plugin{Store: "postgres", Order: 100, Migrator: recordingMigrator{name: "other", log: &ran}},
		Plugin{Store: "sqlite", Order: 100, Migrator: recordingMigrator{name: "early", log: &ran}},
	)
	require.NoError(t, RunAll(ctxFor("sqlite", true)))
	require.Equal(t, []string{"early", "late"}, ran)
}

func TestRunAllStopsAtFirstFailure(t *testing.T) {
	var ran []string
	withPlugins(t,
		Plugin{Store: "sqlite", Order: 100, Migrator: recordingMigrator{name: "broken", log: &ran, err: errors.New("boom")}},
		Plugin{Store: "sqlite", Order: 200, Migrator: recordingMigrator{name: "never", log: &ran}},
	)
	err := RunAll(ctxFor("sqlite", true))
	require.ErrorContains(t, err, "migration broken failed")
	require.Equal(t, []string{"broken"}, ran)
}

func TestRunAllHonorsMigrateAtStart(t *testing.T) {
	var ran []string
	withPlugins(t, Plugin{Store: "sqlite", Migrator: recordingMigrator{name: "schema", log: &ran}})
	require.NoError(t, RunAll(ctxFor("sqlite", false)))
	require.Empty(t, ran)
}

func TestRunAllNeedsConfig(t *testing.T) {
	require.Error(t, RunAll(context.Background()))
}
