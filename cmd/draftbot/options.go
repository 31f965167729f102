package main

import (
	"github.com/aberdasher/draftbot/internal/database"
	"github.com/aberdasher/draftbot/internal/draftapi"
	"github.com/aberdasher/draftbot/internal/registry"
)

type Options struct {
	Addr string `toml:"addr"`

	// TokenHash is the salted hash of the API token, as printed by
	// `draftbot token`.
	TokenHash string                  `toml:"token-hash"`
	Token     *draftapi.TokenOptions  `toml:"token"`
	Debug     bool                    `toml:"debug"`
	DB        database.Options        `toml:"db"`
	Registry  registry.Options        `toml:"registry"`
	Service   draftapi.ServiceOptions `toml:"service"`
}

func (o *Options) FillDefaults() {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:8080"
	}
	o.Registry.FillDefaults()
	o.Service.FillDefaults()
}
