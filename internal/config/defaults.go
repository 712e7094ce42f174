package config

import "time"

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Version: SchemaVersion,
		Listen: ListenConfig{
			Address: "0.0.0.0:7070",
		},
		ObjectStore: ObjectStoreConfig{
			Backend: "local",
			Prefix:  "./data",
		},
		Ingester: IngesterConfig{
			MaxBufferRows: 8192,
		},
		DAL: DALConfig{
			MaxCacheStaleDuration: 30 * time.Second,
		},
		Debuginfo: DebuginfoConfig{
			DebuginfodServers:     nil,
			MaxUploadSize:         1 << 30, // 1 GiB
			MaxUploadDuration:     15 * time.Minute,
			MetadataCacheCapacity: 10000,
		},
		Symbolizer: SymbolizerConfig{
			CacheCapacity: 100000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
