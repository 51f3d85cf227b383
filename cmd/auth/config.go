package main

import "github.com/BurntSushi/toml"

// authConfig is the auth service's own TOML shape: just the one tunable
// the Verifier/HashWindow pair needs (spec §3 "BLOCKLIMIT (L)").
type authConfig struct {
	BlockLimit uint64 `toml:"block_limit"`
}

func loadAuthConfig(path string) (authConfig, error) {
	cfg := authConfig{BlockLimit: 100}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return authConfig{}, err
	}
	return cfg, nil
}
