package database

import "testing"

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"001_study_rooms.sql", 1},
		{"012_indexes.sql", 12},
		{"README.md", 0},
		{"abc_rooms.sql", 0},
		{"001rooms.sql", 0},
		{"000_nothing.sql", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := migrationVersion(tc.name); got != tc.want {
				t.Errorf("migrationVersion(%q) = %d, want %d", tc.name, got, tc.want)
			}
		})
	}
}
