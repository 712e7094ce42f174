// Package config provides layered configuration loading for the profiling
// server: hardcoded defaults, an optional YAML file, and an environment
// variable overlay, in that precedence order.
package config

import "time"

// SchemaVersion is the config schema version written to generated files.
const SchemaVersion = "v1"

// ServerConfig is the root configuration for the profilestore-server binary.
type ServerConfig struct {
	Version string `yaml:"version"`

	Listen ListenConfig `yaml:"listen"`

	ObjectStore ObjectStoreConfig `yaml:"object_store"`

	Ingester IngesterConfig `yaml:"ingester"`

	DAL DALConfig `yaml:"dal"`

	Debuginfo DebuginfoConfig `yaml:"debuginfo"`

	Symbolizer SymbolizerConfig `yaml:"symbolizer"`

	Logging LoggingConfig `yaml:"logging"`
}

// ListenConfig configures the RPC listener.
type ListenConfig struct {
	Address string `yaml:"address" env:"PROFILESTORE_LISTEN_ADDRESS"`
}

// ObjectStoreConfig configures the key->bytes backing store.
type ObjectStoreConfig struct {
	// Backend selects the object store implementation: "local" or "s3".
	Backend string `yaml:"backend" env:"PROFILESTORE_OBJECT_STORE_BACKEND"`
	// Prefix is the root directory of the "local" backend; the "s3" backend ignores it.
	Prefix string `yaml:"prefix" env:"PROFILESTORE_OBJECT_STORE_PREFIX"`
	// Bucket is the S3 bucket name, used only when Backend == "s3".
	Bucket string `yaml:"bucket" env:"PROFILESTORE_OBJECT_STORE_BUCKET"`
	// Region is the S3 region, used only when Backend == "s3".
	Region string `yaml:"region" env:"PROFILESTORE_OBJECT_STORE_REGION"`
}

// IngesterConfig configures the columnar writer (C11).
type IngesterConfig struct {
	// MaxBufferRows is the in-memory row-batch threshold before a flush is triggered.
	MaxBufferRows int `yaml:"max_buffer_rows" env:"PROFILESTORE_INGESTER_MAX_BUFFER_ROWS"`
}

// DALConfig configures the data access layer (C12).
type DALConfig struct {
	// MaxCacheStaleDuration bounds how long a resolved file listing is trusted
	// before the prefix is re-enumerated.
	MaxCacheStaleDuration time.Duration `yaml:"max_cache_stale_duration" env:"PROFILESTORE_DAL_MAX_CACHE_STALE"`
}

// DebuginfoConfig configures the debug-info lifecycle (C4, C5, C9).
type DebuginfoConfig struct {
	// DebuginfodServers are consulted in order for build-ids unknown locally.
	DebuginfodServers []string `yaml:"debuginfod_servers" env:"PROFILESTORE_DEBUGINFOD_SERVERS"`
	// MaxUploadSize bounds the accepted size of an uploaded debug artifact, in bytes.
	MaxUploadSize int64 `yaml:"max_upload_size" env:"PROFILESTORE_DEBUGINFO_MAX_UPLOAD_SIZE"`
	// MaxUploadDuration is the UPLOADING staleness window before a reclaim is allowed.
	MaxUploadDuration time.Duration `yaml:"max_upload_duration" env:"PROFILESTORE_DEBUGINFO_MAX_UPLOAD_DURATION"`
	// MetadataCacheCapacity bounds the metadata store's LRU-evicted size.
	MetadataCacheCapacity int `yaml:"metadata_cache_capacity" env:"PROFILESTORE_DEBUGINFO_METADATA_CACHE_CAPACITY"`
}

// SymbolizerConfig configures the symbolizer cache (C7).
type SymbolizerConfig struct {
	// CacheCapacity bounds the number of (build_id, address) -> lines entries cached.
	CacheCapacity int `yaml:"cache_capacity" env:"PROFILESTORE_SYMBOLIZER_CACHE_CAPACITY"`
}

// LoggingConfig configures the zerolog wiring.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"PROFILESTORE_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PROFILESTORE_LOG_PRETTY"`
}
