package ptyshell

import (
	"pkt.systems/qermital/core"
	"pkt.systems/qermital/internal/surface"
	"pkt.systems/qermital/schema"
)

func coreRequest(dir, command string) core.SpawnRequest {
	return core.SpawnRequest{
		Session:   1,
		Surface:   surface.NewProvider(0).Acquire(1),
		Directory: dir,
		Command:   command,
		Settings:  schema.DefaultSettings(),
	}
}
