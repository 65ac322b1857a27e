// Package cart keeps the shopping cart inside the visitor's session.
//
// The cart maps product ids to a quantity and the price seen when the
// product was first added. It is reconciled against the catalog every time
// its lines are read: entries whose product no longer exists are dropped.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/irsalhamdi/storefront/core/product"
	"github.com/shopspring/decimal"
)

const sessionKey = "cart"

// Session is the slice of the session manager the cart relies on. Put is
// also how the cart marks the session as modified.
type Session interface {
	GetBytes(ctx context.Context, key string) []byte
	Put(ctx context.Context, key string, val any)
	Remove(ctx context.Context, key string)
}

// Catalog resolves product ids in batch. Unknown ids are absent from the
// result rather than reported as errors.
type Catalog interface {
	FetchByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

type entry struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Seq      int             `json:"seq"`
}

type Line struct {
	Product    product.Product `json:"product"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type Summary struct {
	Lines []Line          `json:"lines"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type Cart struct {
	sess    Session
	catalog Catalog
	items   map[string]entry
}

// Load reads the cart stored in the session bound to ctx. A missing or
// unreadable value yields an empty cart.
func Load(ctx context.Context, sess Session, catalog Catalog) *Cart {
	c := Cart{
		sess:    sess,
		catalog: catalog,
		items:   make(map[string]entry),
	}

	if b := sess.GetBytes(ctx, sessionKey); len(b) > 0 {
		if err := json.Unmarshal(b, &c.items); err != nil || c.items == nil {
			c.items = make(map[string]entry)
		}
	}

	return &c
}

// Add puts quantity units of p in the cart, or sets the line to exactly
// quantity when override is set. The price is captured on first insertion
// only.
func (c *Cart) Add(ctx context.Context, p product.Product, quantity int, override bool) error {
	e, ok := c.items[p.ID]
	if !ok {
		e = entry{Price: p.Price, Seq: c.nextSeq()}
	}

	if override {
		e.Quantity = quantity
	} else {
		e.Quantity += quantity
	}

	if e.Quantity < 1 {
		delete(c.items, p.ID)
	} else {
		c.items[p.ID] = e
	}

	return c.save(ctx)
}

// Remove drops the line for productID. Absent products are ignored.
func (c *Cart) Remove(ctx context.Context, productID string) error {
	if _, ok := c.items[productID]; !ok {
		return nil
	}
	delete(c.items, productID)
	return c.save(ctx)
}

// Lines enriches every entry with its live catalog product, in the order
// the products were added. Entries whose product is gone are pruned from
// the session.
func (c *Cart) Lines(ctx context.Context) ([]Line, error) {
	if len(c.items) == 0 {
		return []Line{}, nil
	}

	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return c.items[ids[i]].Seq < c.items[ids[j]].Seq })

	ps, err := c.catalog.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching cart products: %w", err)
	}

	live := make(map[string]product.Product, len(ps))
	for _, p := range ps {
		live[p.ID] = p
	}

	lines := make([]Line, 0, len(ids))
	pruned := false
	for _, id := range ids {
		p, ok := live[id]
		if !ok {
			delete(c.items, id)
			pruned = true
			continue
		}

		e := c.items[id]
		lines = append(lines, Line{
			Product:    p,
			Quantity:   e.Quantity,
			UnitPrice:  e.Price,
			TotalPrice: e.Price.Mul(decimal.NewFromInt(int64(e.Quantity))),
		})
	}

	if pruned {
		if err := c.save(ctx); err != nil {
			return nil, err
		}
	}

	return lines, nil
}

// Count is the number of units in the cart, not the number of lines.
func (c *Cart) Count() int {
	n := 0
	for _, e := range c.items {
		n += e.Quantity
	}
	return n
}

func (c *Cart) Total(ctx context.Context) (decimal.Decimal, error) {
	lines, err := c.Lines(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return sum(lines), nil
}

// Summarize returns the lines along with the count and total that agree
// with them.
func (c *Cart) Summarize(ctx context.Context) (Summary, error) {
	lines, err := c.Lines(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Lines: lines, Count: c.Count(), Total: sum(lines)}, nil
}

// Clear deletes the cart from the session.
func (c *Cart) Clear(ctx context.Context) {
	c.items = make(map[string]entry)
	c.sess.Remove(ctx, sessionKey)
}

func (c *Cart) save(ctx context.Context) error {
	b, err := json.Marshal(c.items)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	c.sess.Put(ctx, sessionKey, b)
	return nil
}

func (c *Cart) nextSeq() int {
	max := 0
	for _, e := range c.items {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max + 1
}

func sum(lines []Line) decimal.Decimal {
	tot := decimal.Zero
	for _, l := range lines {
		tot = tot.Add(l.TotalPrice)
	}
	return tot
}
