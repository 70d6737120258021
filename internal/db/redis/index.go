package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/wearly/searchd/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

func buildCreateArgs(def *db.IndexDefinition) ([]string, error) {
	if def.Name == "" {
		return nil, errors.New("index name is required")
	}
	if def.VectorField == "" || def.VectorDim <= 0 {
		return nil, errors.New("vector field and positive dimension are required")
	}

	args := []string{def.Name, "ON", "HASH"}

	if len(def.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(def.Prefixes)))
		args = append(args, def.Prefixes...)
	}

	args = append(args, "SCHEMA")
	args = append(args, buildVectorFieldArgs(def)...)

	for _, f := range def.NumericFields {
		args = append(args, f, "NUMERIC")
	}
	for _, f := range def.TagFields {
		args = append(args, f, "TAG")
	}
	for _, f := range def.TextFields {
		args = append(args, f, "TEXT")
	}

	return args, nil
}

func buildVectorFieldArgs(def *db.IndexDefinition) []string {
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(def.VectorDim),
		"DISTANCE_METRIC", "COSINE",
	}
	if def.HNSWM > 0 {
		attrs = append(attrs, "M", strconv.Itoa(def.HNSWM))
	}
	if def.HNSWEFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(def.HNSWEFConstruct))
	}

	args := make([]string, 0, 3+len(attrs))
	args = append(args, def.VectorField, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	args = append(args, attrs...)
	return args
}
