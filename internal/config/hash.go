package config

import (
	"encoding/json"
	"hash/fnv"
)

// hashConfig fingerprints cfg for reload de-duplication. 0 means "unknown"
// and never matches.
func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
