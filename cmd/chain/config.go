package main

import "github.com/BurntSushi/toml"

// chainConfig is the chain service's own TOML shape.
type chainConfig struct {
	ExecutedBuffer int    `toml:"executed_buffer"`
	ProofType      string `toml:"proof_type"`
}

func loadChainConfig(path string) (chainConfig, error) {
	cfg := chainConfig{ExecutedBuffer: 64, ProofType: "tendermint"}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return chainConfig{}, err
	}
	return cfg, nil
}
