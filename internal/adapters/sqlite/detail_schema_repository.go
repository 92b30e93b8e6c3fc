package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type detailSchemaModel struct {
	Action     string    `gorm:"column:action;primaryKey"`
	SchemaJSON string    `gorm:"column:schema_json;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (detailSchemaModel) TableName() string {
	return "detail_schemas"
}

type DetailSchemaRepository struct {
	db *gormsqlite.DB
}

func NewDetailSchemaRepository(db *gormsqlite.DB) *DetailSchemaRepository {
	return &DetailSchemaRepository{db: db}
}

func (r *DetailSchemaRepository) Upsert(ctx context.Context, schema domain.DetailSchema) (domain.DetailSchema, error) {
	now := time.Now().UTC()
	model := detailSchemaModel{
		Action:     schema.Action,
		SchemaJSON: string(schema.Schema),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var out domain.DetailSchema
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "action"}},
			DoUpdates: clause.AssignmentColumns([]string{"schema_json", "updated_at"}),
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("upsert detail schema: %w", err)
		}

		var saved detailSchemaModel
		if err := tx.Where("action = ?", schema.Action).First(&saved).Error; err != nil {
			return fmt.Errorf("load upserted detail schema: %w", err)
		}
		out = toDetailSchemaDomain(saved)
		return nil
	})
	if err != nil {
		return domain.DetailSchema{}, err
	}
	return out, nil
}

func (r *DetailSchemaRepository) Get(ctx context.Context, action string) (domain.DetailSchema, error) {
	var model detailSchemaModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("action = ?", action).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DetailSchema{}, domain.ErrNotFound
		}
		return domain.DetailSchema{}, fmt.Errorf("get detail schema: %w", err)
	}
	return toDetailSchemaDomain(model), nil
}

func (r *DetailSchemaRepository) Delete(ctx context.Context, action string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("action = ?", action).Delete(&detailSchemaModel{})
		if res.Error != nil {
			return fmt.Errorf("delete detail schema: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func toDetailSchemaDomain(model detailSchemaModel) domain.DetailSchema {
	return domain.DetailSchema{
		Action:    model.Action,
		Schema:    json.RawMessage(model.SchemaJSON),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
