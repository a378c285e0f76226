package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/ids"
)

// MemoryDirectory is the in-memory Directory used when no database is configured.
type MemoryDirectory struct {
	mu      sync.Mutex
	byID    map[string]Client
	byEmail map[string]string
}

// NewMemoryDirectory constructs an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]Client),
		byEmail: make(map[string]string),
	}
}

// Promote creates a client, or updates the client that already owns the same email.
func (d *MemoryDirectory) Promote(ctx context.Context, in PromoteInput) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	p, err := ProfileFromData(in.Data)
	if err != nil {
		return Result{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if p.Email != nil {
		if id, ok := d.byEmail[NormalizeEmail(*p.Email)]; ok {
			c := d.byID[id]
			c.Name = p.Name
			c.Email = pick(p.Email, c.Email)
			c.Phone = pick(p.Phone, c.Phone)
			c.Address = pick(p.Address, c.Address)
			c.Industry = pick(p.Industry, c.Industry)
			c.ContactPerson = pick(p.ContactPerson, c.ContactPerson)
			c.Profile = copyProfile(copyProfile(nil, c.Profile), in.Data)
			c.SourceSubmissionID = strPtr(in.SubmissionID)
			c.UpdatedAt = now
			d.byID[id] = c
			return Result{Client: c, Created: false}, nil
		}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Result{}, err
	}
	c := Client{
		ID:                 id,
		Name:               p.Name,
		Email:              p.Email,
		Phone:              p.Phone,
		Address:            p.Address,
		Industry:           p.Industry,
		ContactPerson:      p.ContactPerson,
		Profile:            copyProfile(nil, in.Data),
		SourceSubmissionID: strPtr(in.SubmissionID),
		CreatedBy:          strPtr(in.PromotedBy),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	d.byID[id] = c
	if p.Email != nil {
		d.byEmail[NormalizeEmail(*p.Email)] = id
	}
	return Result{Client: c, Created: true}, nil
}

// Get returns a client by id.
func (d *MemoryDirectory) Get(ctx context.Context, id string) (Client, error) {
	if err := ctx.Err(); err != nil {
		return Client{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.byID[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	return c, nil
}

// Len reports the number of stored clients.
func (d *MemoryDirectory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byID)
}

func strPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
