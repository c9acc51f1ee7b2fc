package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreFallsBackWhenEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, nil)

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog().SpecialtyNames(), c.SpecialtyNames())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, nil)

	require.NoError(t, store.Set(context.Background(), testCatalog()))
	assert.True(t, mr.Exists(catalogKey))

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Clínica Centro", c.ClinicName)
	assert.Len(t, c.Practitioners, 4)

	invalid := &Catalog{Specialties: []Specialty{{Name: "Cardiology"}}, Practitioners: []Practitioner{{ID: "x", Name: "X", Specialties: []string{"Oncology"}}}}
	assert.Error(t, store.Set(context.Background(), invalid))
}

func TestRedisStoreReportsCorruptData(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, mr.Set(catalogKey, "{not json"))

	_, err := NewRedisStore(client, nil).Load(context.Background())
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	seed := `
clinic_name: Clínica Centro
specialties:
  - name: Cardiology
    aliases: [cardiologia]
  - name: Dermatology
practitioners:
  - id: dr-silva
    name: Dr. Ana Silva
    specialties: [Cardiology]
    calendar_id: silva@clinic.example
    shifts:
      - weekday: 1
        start: "09:00"
        end: "12:00"
  - id: dr-souza
    name: Dra. Carla Souza
    specialties: [Dermatology]
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cardiology", "Dermatology"}, c.SpecialtyNames())
	assert.Equal(t, map[string]string{"dr-silva": "silva@clinic.example"}, c.CalendarIDs())

	shifts := c.ShiftsByID()
	require.Len(t, shifts["dr-silva"], 1)
	assert.Equal(t, time.Monday, shifts["dr-silva"][0].Weekday)
	assert.Equal(t, []string{"Dr. Ana Silva"}, c.PractitionerNames("cardiology"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
