package catalog

import (
	"context"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Catalog is the read-only lookup of purchasable products.
type Catalog interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}

// Static serves a fixed product set loaded at startup.
type Static struct {
	products map[uuid.UUID]domain.Product
}

func NewStatic(products []domain.Product) (*Static, error) {
	s := &Static{products: make(map[uuid.UUID]domain.Product, len(products))}
	for _, p := range products {
		if err := Validate(p); err != nil {
			return nil, err
		}
		if _, dup := s.products[p.ID]; dup {
			return nil, errors.Wrapf(domain.ErrInvalidInput, "duplicate product id %s", p.ID)
		}
		s.products[p.ID] = p
	}
	return s, nil
}

func (s *Static) Get(_ context.Context, id uuid.UUID) (domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, errors.Wrapf(domain.ErrProductNotFound, "id %s", id)
	}
	return p, nil
}

func (s *Static) List(_ context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Validate checks a product definition coming from seed or admin data.
func Validate(p domain.Product) error {
	if p.ID == uuid.Nil {
		return errors.Wrap(domain.ErrInvalidInput, "product id is required")
	}
	if _, err := domain.ParseProductType(string(p.Type)); err != nil {
		return err
	}
	for _, t := range p.TierEligibility {
		if _, err := domain.ParseTier(string(t)); err != nil {
			return err
		}
	}
	if p.Type.IsPass() && p.CreditCount != domain.UnlimitedCredits {
		return errors.Wrapf(domain.ErrInvalidInput, "pass %s must carry unlimited credits", p.ID)
	}
	if !p.Type.IsPass() && p.CreditCount <= 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "product %s has no credits", p.ID)
	}
	if p.BasePriceMAD < 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "product %s has a negative price", p.ID)
	}
	return nil
}

type seedFile struct {
	Products []domain.Product `yaml:"products"`
}

// LoadSeed reads a YAML product seed file.
func LoadSeed(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog seed %s", path)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parse catalog seed %s", path)
	}
	return f.Products, nil
}

// Fixed ids so seeded products keep the same identity across environments.
var (
	BlaneID        = uuid.MustParse("7d1f0f5e-3b8a-4a53-9b39-000000000001")
	Pack5ID        = uuid.MustParse("7d1f0f5e-3b8a-4a53-9b39-000000000005")
	Pack10ID       = uuid.MustParse("7d1f0f5e-3b8a-4a53-9b39-000000000010")
	PassStandardID = uuid.MustParse("7d1f0f5e-3b8a-4a53-9b39-000000000030")
	PassPremiumID  = uuid.MustParse("7d1f0f5e-3b8a-4a53-9b39-000000000031")
)

func DefaultProducts() []domain.Product {
	return []domain.Product{
		{ID: BlaneID, Type: domain.ProductSingle, Name: "Blane", CreditCount: 1, BasePriceMAD: 90},
		{ID: Pack5ID, Type: domain.ProductPack5, Name: "Pack 5 entrées", CreditCount: 5, BasePriceMAD: 405},
		{ID: Pack10ID, Type: domain.ProductPack10, Name: "Pack 10 entrées", CreditCount: 10, BasePriceMAD: 720},
		{
			ID: PassStandardID, Type: domain.ProductPassStandard, Name: "Pass Standard", CreditCount: domain.UnlimitedCredits,
			TierEligibility: []domain.Tier{domain.TierBasic, domain.TierStandard}, BasePriceMAD: 299,
		},
		{
			ID: PassPremiumID, Type: domain.ProductPassPremium, Name: "Pass Premium", CreditCount: domain.UnlimitedCredits,
			TierEligibility: []domain.Tier{domain.TierBasic, domain.TierStandard, domain.TierPremium}, BasePriceMAD: 499,
		},
	}
}
