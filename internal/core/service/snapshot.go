package service

import (
	"github.com/berfenger/bmsgateway/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

// Snapshot captures storage for telemetry, stamped with the build version.
func Snapshot(storage *domain.EnergyStorage, units []string) domain.StorageSnapshot {
	s := storage.StorageSnapshot(units)
	s.Version = versioninfo.Short()
	return s
}
