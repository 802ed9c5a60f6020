package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"crm-dashboard/internal/domain"
)

const dealsPath = "/bitrix24/deals"

// DealsService wraps the deal CRUD endpoints
type DealsService struct {
	c *Client
}

// List returns one page of deals. Zero start or limit is left to the API default.
func (s *DealsService) List(ctx context.Context, start, limit int) (*domain.DealsPage, error) {
	query := url.Values{}
	if start > 0 {
		query.Set("start", strconv.Itoa(start))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var out domain.DealsPage
	if err := s.c.Do(ctx, http.MethodGet, dealsPath, query, nil, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []domain.Deal{}
	}
	return &out, nil
}

func (s *DealsService) Get(ctx context.Context, id int) (*domain.DealDetails, error) {
	var out domain.DealDetails
	if err := s.c.Do(ctx, http.MethodGet, dealPath(id), nil, nil, &out); err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (s *DealsService) Create(ctx context.Context, deal domain.CreateDeal) (*domain.CreatedDeal, error) {
	var out domain.CreatedDeal
	if err := s.c.Do(ctx, http.MethodPost, dealsPath, nil, deal, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Repeat copies an existing deal into a new one
func (s *DealsService) Repeat(ctx context.Context, id int) (*domain.CreatedDeal, error) {
	var out domain.CreatedDeal
	path := fmt.Sprintf("%s/repeat/%d", dealsPath, id)
	if err := s.c.Do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

// Update sends a partial document; omitted fields are left untouched
func (s *DealsService) Update(ctx context.Context, id int, patch domain.CreateDeal) (*domain.DealDetails, error) {
	var out domain.DealDetails
	if err := s.c.Do(ctx, http.MethodPut, dealPath(id), nil, patch, &out); err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (s *DealsService) Delete(ctx context.Context, id int) error {
	if err := s.c.Do(ctx, http.MethodDelete, dealPath(id), nil, nil, nil); err != nil {
		return notFound(err)
	}
	return nil
}

func dealPath(id int) string {
	return dealsPath + "/" + strconv.Itoa(id)
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrDealNotFound, err)
	}
	return err
}
