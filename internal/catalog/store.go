package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v2"
)

const catalogKey = "clinic:catalog"

// Provider returns the current catalog.
type Provider interface {
	Load(ctx context.Context) (*Catalog, error)
}

// Static serves a fixed catalog.
type Static struct {
	catalog *Catalog
}

// NewStatic wraps c. A nil catalog serves DefaultCatalog.
func NewStatic(c *Catalog) *Static {
	if c == nil {
		c = DefaultCatalog()
	}
	return &Static{catalog: c}
}

func (s *Static) Load(context.Context) (*Catalog, error) {
	return s.catalog, nil
}

// RedisStore keeps the catalog as JSON in Redis so it can be edited without a
// redeploy. Reads return the fallback catalog when nothing is stored.
type RedisStore struct {
	redis    *redis.Client
	fallback *Catalog
}

// NewRedisStore creates a Redis backed catalog store.
func NewRedisStore(client *redis.Client, fallback *Catalog) *RedisStore {
	if client == nil {
		panic("catalog: redis client cannot be nil")
	}
	if fallback == nil {
		fallback = DefaultCatalog()
	}
	return &RedisStore{redis: client, fallback: fallback}
}

// Load retrieves the catalog, returning the fallback if none is stored.
func (s *RedisStore) Load(ctx context.Context) (*Catalog, error) {
	data, err := s.redis.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal: %w", err)
	}
	return &c, nil
}

// Set replaces the stored catalog.
func (s *RedisStore) Set(ctx context.Context, c *Catalog) error {
	if err := Validate(c); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("catalog: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, catalogKey, data, 0).Err(); err != nil {
		return fmt.Errorf("catalog: set: %w", err)
	}
	return nil
}

// LoadFile reads a YAML catalog seed file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every practitioner has an id and only references
// specialties present in the catalog.
func Validate(c *Catalog) error {
	if c == nil {
		return errors.New("catalog: nil catalog")
	}
	if len(c.Specialties) == 0 {
		return errors.New("catalog: no specialties")
	}
	seen := make(map[string]struct{}, len(c.Practitioners))
	for _, p := range c.Practitioners {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("catalog: practitioner %q missing id or name", p.Name)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("catalog: duplicate practitioner id %s", p.ID)
		}
		seen[p.ID] = struct{}{}
		for _, s := range p.Specialties {
			if _, ok := c.Specialty(s); !ok {
				return fmt.Errorf("catalog: practitioner %s references unknown specialty %q", p.ID, s)
			}
		}
	}
	return nil
}
