package config

import (
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Kafka.MaxDeliveries)
	assert.Equal(t, 3, cfg.Cache.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Cache.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Warehouse.AgeThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Warehouse.Interval)
	assert.Equal(t, "DHL", cfg.Transport.PartitionKey)
	assert.Equal(t, int32(8), cfg.Postgres.MaxConns)
}

func TestFromViper_Overrides(t *testing.T) {
	v := newViper()
	v.Set("kafka.brokers", " k1:9092, ,k2:9092 ")
	v.Set("warehouse.batch_size", 10)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10, cfg.Warehouse.BatchSize)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FULFILLMENT_TRANSPORT_PARTITION_KEY", "UPS")
	t.Setenv("FULFILLMENT_KAFKA_MAX_DELIVERIES", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "UPS", cfg.Transport.PartitionKey)
	assert.Equal(t, 5, cfg.Kafka.MaxDeliveries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *viper.Viper)
	}{
		{"no brokers", func(v *viper.Viper) { v.Set("kafka.brokers", "") }},
		{"zero deliveries", func(v *viper.Viper) { v.Set("kafka.max_deliveries", 0) }},
		{"zero cache attempts", func(v *viper.Viper) { v.Set("cache.retry_attempts", 0) }},
		{"zero batch", func(v *viper.Viper) { v.Set("warehouse.batch_size", 0) }},
		{"zero interval", func(v *viper.Viper) { v.Set("refresh.interval", "0s") }},
		{"empty partition", func(v *viper.Viper) { v.Set("transport.partition_key", "") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			tt.mutate(v)
			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV("a, b,,"))
	assert.Empty(t, splitCSV(""))
}
