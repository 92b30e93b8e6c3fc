package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
)

// DetailSchemaService manages per-action JSON schemas for audit details.
type DetailSchemaService struct {
	repo  ports.DetailSchemaRepository
	cache sync.Map // key: action → *santhosh.Schema, or noSchema
}

type noSchemaMarker struct{}

var noSchema = noSchemaMarker{}

func NewDetailSchemaService(repo ports.DetailSchemaRepository) *DetailSchemaService {
	return &DetailSchemaService{repo: repo}
}

func (s *DetailSchemaService) Upsert(ctx context.Context, action string, schemaJSON json.RawMessage) (domain.DetailSchema, error) {
	if err := domain.ValidateAction(action); err != nil {
		return domain.DetailSchema{}, err
	}
	if !json.Valid(schemaJSON) {
		return domain.DetailSchema{}, fmt.Errorf("%w: schema must be valid json", domain.ErrInvalidInput)
	}
	if _, err := compileSchema(schemaJSON); err != nil {
		return domain.DetailSchema{}, fmt.Errorf("%w: invalid json schema: %v", domain.ErrInvalidInput, err)
	}
	saved, err := s.repo.Upsert(ctx, domain.DetailSchema{Action: action, Schema: schemaJSON})
	if err != nil {
		return domain.DetailSchema{}, err
	}
	// Evict after the write so a concurrent Validate cannot re-cache the old state.
	s.cache.Delete(action)
	return saved, nil
}

func (s *DetailSchemaService) Get(ctx context.Context, action string) (domain.DetailSchema, error) {
	if err := domain.ValidateAction(action); err != nil {
		return domain.DetailSchema{}, err
	}
	return s.repo.Get(ctx, action)
}

func (s *DetailSchemaService) Delete(ctx context.Context, action string) (bool, error) {
	if err := domain.ValidateAction(action); err != nil {
		return false, err
	}
	deleted, err := s.repo.Delete(ctx, action)
	if err != nil {
		return false, err
	}
	s.cache.Delete(action)
	return deleted, nil
}

// Validate checks details against the schema registered for action. Actions
// without a schema pass. Returns *domain.ErrSchemaViolation on failure.
func (s *DetailSchemaService) Validate(ctx context.Context, action string, details json.RawMessage) error {
	if cached, ok := s.cache.Load(action); ok {
		if cached == noSchema {
			return nil
		}
		return runValidation(cached.(*santhosh.Schema), details)
	}

	ds, err := s.repo.Get(ctx, action)
	if errors.Is(err, domain.ErrNotFound) {
		s.cache.Store(action, noSchema)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load detail schema: %w", err)
	}

	compiled, err := compileSchema(ds.Schema)
	if err != nil {
		return fmt.Errorf("compile detail schema: %w", err)
	}
	s.cache.Store(action, compiled)
	return runValidation(compiled, details)
}

func compileSchema(schemaJSON json.RawMessage) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func runValidation(sch *santhosh.Schema, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidDetails, err)
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSchemaViolation{Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrSchemaViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
