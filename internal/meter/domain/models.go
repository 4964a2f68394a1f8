package domain

import (
	"context"
	"errors"
)

// Meter is a priced resource guarded by the payment gateway. The catalog is
// immutable from the caller's point of view; entries are loaded at process
// start and replaced wholesale on config reload.
type Meter struct {
	Resource    string `json:"resource"`
	Price       string `json:"price"`
	Asset       string `json:"asset"`
	Chain       string `json:"chain"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type Service interface {
	GetByResource(ctx context.Context, resource string) (*Meter, error)
	List(ctx context.Context) ([]Meter, error)
}

var (
	ErrNotFound        = errors.New("meter_not_found")
	ErrInvalidResource = errors.New("invalid_resource")
)
