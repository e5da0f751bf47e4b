package store

import "context"

type FeatureCostStore struct {
	db DB
}

type FeatureCost struct {
	ID          string `db:"id"`
	FeatureName string `db:"feature_name"`
	TokenCost   int64  `db:"token_cost"`
	Description string `db:"description"`
}

type FeatureCostInput struct {
	FeatureName string
	TokenCost   int64
	Description string
}

func NewFeatureCostStore(db DB) *FeatureCostStore {
	return &FeatureCostStore{db: db}
}

func (s *FeatureCostStore) Get(ctx context.Context, featureName string) (FeatureCost, error) {
	var row FeatureCost
	err := s.db.GetContext(ctx, &row, `
		SELECT id, feature_name, token_cost, description
		FROM feature_costs
		WHERE feature_name = $1
	`, featureName)
	if err != nil {
		return FeatureCost{}, err
	}
	return row, nil
}

func (s *FeatureCostStore) List(ctx context.Context) ([]FeatureCost, error) {
	var rows []FeatureCost
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, feature_name, token_cost, description
		FROM feature_costs
		ORDER BY feature_name
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert is idempotent by feature name.
func (s *FeatureCostStore) Upsert(ctx context.Context, tx Execer, input FeatureCostInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO feature_costs (id, feature_name, token_cost, description)
		VALUES (gen_random_uuid()::text, $1, $2, $3)
		ON CONFLICT (feature_name)
		DO UPDATE SET token_cost = EXCLUDED.token_cost, description = EXCLUDED.description
	`, input.FeatureName, input.TokenCost, input.Description)
	return err
}
