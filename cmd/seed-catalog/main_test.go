package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/internal/catalog"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

type recordingShifts struct {
	got map[string][]availability.Shift
	err error
}

func (r *recordingShifts) Replace(_ context.Context, shifts map[string][]availability.Shift) error {
	r.got = shifts
	return r.err
}

const seedYAML = `
clinic_name: Clínica Centro
specialties:
  - name: Cardiology
practitioners:
  - id: dr-silva
    name: Dr. Ana Silva
    specialties: [Cardiology]
    shifts:
      - weekday: 2
        start: "08:00"
        end: "12:00"
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	return path
}

func TestSeedPublishesCatalogAndShifts(t *testing.T) {
	mr := miniredis.RunT(t)
	store := catalog.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	shifts := &recordingShifts{}

	require.NoError(t, seed(context.Background(), writeSeed(t), store, shifts, logging.New("error")))

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Clínica Centro", c.ClinicName)
	require.Len(t, shifts.got["dr-silva"], 1)
	assert.Equal(t, "08:00", shifts.got["dr-silva"][0].Start)
}

func TestSeedRequiresPostgresForShifts(t *testing.T) {
	mr := miniredis.RunT(t)
	store := catalog.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)

	err := seed(context.Background(), writeSeed(t), store, nil, logging.New("error"))
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestSeedSurfacesShiftErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	store := catalog.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)

	err := seed(context.Background(), writeSeed(t), store, &recordingShifts{err: errors.New("boom")}, logging.New("error"))
	assert.ErrorContains(t, err, "boom")
}
