package depthmesh

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the user-tunable configuration, loadable from a TOML file.
type Settings struct {
	VolumeDim             [3]int  `toml:"volume_dim"`
	VoxelPitch            float32 `toml:"voxel_pitch"`
	MinViewDistance       float32 `toml:"min_view_distance"`
	MaxViewDistance       float32 `toml:"max_view_distance"`
	MaxMeshUpdateDistance float32 `toml:"max_mesh_update_distance"`
	TriangleBudget        int     `toml:"triangle_budget"`
	IntegrationRateHz     float32 `toml:"integration_rate_hz"`
	RefreshRateHz         float32 `toml:"refresh_rate_hz"`
	BakeCollision         bool    `toml:"bake_collision"`
	BakeNavMesh           bool    `toml:"bake_nav_mesh"`
	Verbose               bool    `toml:"verbose"`
}

func DefaultSettings() Settings {
	return Settings{
		VolumeDim:             [3]int{128, 64, 128},
		VoxelPitch:            0.08,
		MinViewDistance:       0.3,
		MaxViewDistance:       5.0,
		MaxMeshUpdateDistance: 0,
		TriangleBudget:        250_000,
		IntegrationRateHz:     10,
		RefreshRateHz:         2,
		BakeCollision:         true,
		BakeNavMesh:           false,
		Verbose:               false,
	}
}

// LoadSettings reads a TOML file over the defaults, so a partial file only
// overrides the keys it names.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) Validate() error {
	for i, d := range s.VolumeDim {
		if d < 2 {
			return fmt.Errorf("volume_dim[%d] must be at least 2, got %d", i, d)
		}
	}
	if s.VoxelPitch <= 0 {
		return fmt.Errorf("voxel_pitch must be positive, got %v", s.VoxelPitch)
	}
	if s.MinViewDistance < 0 {
		return fmt.Errorf("min_view_distance must be non-negative, got %v", s.MinViewDistance)
	}
	if s.MaxViewDistance <= s.MinViewDistance {
		return fmt.Errorf("max_view_distance %v must exceed min_view_distance %v",
			s.MaxViewDistance, s.MinViewDistance)
	}
	if s.MaxMeshUpdateDistance < 0 {
		return fmt.Errorf("max_mesh_update_distance must be non-negative, got %v", s.MaxMeshUpdateDistance)
	}
	if s.TriangleBudget <= 0 {
		return fmt.Errorf("triangle_budget must be positive, got %d", s.TriangleBudget)
	}
	if s.IntegrationRateHz <= 0 {
		return fmt.Errorf("integration_rate_hz must be positive, got %v", s.IntegrationRateHz)
	}
	if s.RefreshRateHz <= 0 {
		return fmt.Errorf("refresh_rate_hz must be positive, got %v", s.RefreshRateHz)
	}
	return nil
}
