package initializer

import (
	"path/filepath"
	"testing"

	infra_eventbus "github.com/amirasaad/treasury/infra/eventbus"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEventBus(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.App
		want    eventbus.Bus
		wantErr bool
	}{
		{
			name: "no driver is async in-memory even with redis configured",
			cfg: &config.App{
				Redis:    &config.Redis{URL: "redis://localhost:6379/0"},
				EventBus: &config.EventBus{},
			},
			want: &infra_eventbus.MemoryAsyncEventBus{},
		},
		{
			name: "memory driver is synchronous",
			cfg:  &config.App{EventBus: &config.EventBus{Driver: "memory"}},
			want: &infra_eventbus.MemoryEventBus{},
		},
		{
			name:    "redis without a url",
			cfg:     &config.App{Redis: &config.Redis{}, EventBus: &config.EventBus{Driver: "redis"}},
			wantErr: true,
		},
		{
			name: "unreachable redis falls back",
			cfg:  &config.App{EventBus: &config.EventBus{Driver: "redis", RedisURL: "redis://127.0.0.1:1"}},
			want: &infra_eventbus.MemoryAsyncEventBus{},
		},
		{
			name:    "kafka without brokers",
			cfg:     &config.App{EventBus: &config.EventBus{Driver: "kafka", KafkaBrokers: []string{" "}}},
			wantErr: true,
		},
		{
			name: "unreachable kafka falls back",
			cfg:  &config.App{EventBus: &config.EventBus{Driver: "kafka", KafkaBrokers: []string{"127.0.0.1:1"}}},
			want: &infra_eventbus.MemoryAsyncEventBus{},
		},
		{
			name:    "unknown driver",
			cfg:     &config.App{EventBus: &config.EventBus{Driver: "nats"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, err := initEventBus(tt.cfg, testutils.DiscardLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, bus)
		})
	}
}

func TestInitializeDependencies_SQLite(t *testing.T) {
	cfg := &config.App{
		Env:      "test",
		Log:      &config.Log{Format: "text"},
		DB:       &config.DB{Url: "sqlite://" + filepath.Join(t.TempDir(), "t.db"), AutoMigrate: true},
		EventBus: &config.EventBus{Driver: "memory"},
	}
	deps, err := InitializeDependencies(cfg)
	require.NoError(t, err)
	assert.NotNil(t, deps.Uow)
	assert.NotNil(t, deps.Rail)
	assert.NotNil(t, deps.BankSync)
	assert.NotNil(t, deps.ProgressCache)
	assert.NotNil(t, cfg.Program)
}
