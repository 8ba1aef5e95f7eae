// Package catalog implements the item catalog operations of §4.2: URL
// canonicalisation, vendor-tag inference, per-owner daily add quotas and
// admin overrides, sitting directly on top of internal/store.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockwatch/internal/clock"
	"stockwatch/internal/config"
	"stockwatch/internal/model"
	"stockwatch/internal/store"
)

// Catalog mediates every add/remove/list operation against the store,
// enforcing quota and vendor-tagging before an item ever reaches the
// scheduler's due set.
type Catalog struct {
	store *store.Store
	cfg   config.Config
	clock clock.Clock
	log   *zap.Logger
}

func New(st *store.Store, cfg config.Config, clk clock.Clock, log *zap.Logger) *Catalog {
	return &Catalog{store: st, cfg: cfg, clock: clk, log: log}
}

// AddItem canonicalises rawURL, infers its vendor tag, enforces the daily
// add quota for non-admin owners and persists a new item (§4.2).
func (c *Catalog) AddItem(ctx context.Context, ownerID, name, rawURL string, isAdmin, isGlobal bool) (model.Item, error) {
	canon, err := CanonicalizeURL(rawURL)
	if err != nil {
		return model.Item{}, fmt.Errorf("%w: %v", store.ErrInvalidURL, err)
	}

	if !isAdmin && c.cfg.DailyAddLimit > 0 {
		windowStart := c.clock.Now().Add(-24 * time.Hour)
		n, err := c.store.CountItemsAddedToday(ctx, ownerID, windowStart)
		if err != nil {
			return model.Item{}, err
		}
		if n >= c.cfg.DailyAddLimit {
			return model.Item{}, store.ErrQuotaExceeded
		}
	}

	it := model.Item{
		ItemID:    uuid.New(),
		OwnerID:   ownerID,
		IsGlobal:  isGlobal,
		Name:      name,
		URL:       canon,
		VendorTag: InferVendorTag(canon, c.cfg.VendorTags),
		Enabled:   true,
		CreatedAt: c.clock.Now().UTC(),
	}

	if err := c.store.CreateItem(ctx, it); err != nil {
		return model.Item{}, err
	}

	if !isAdmin {
		if err := c.store.IncrementDailyAddedCount(ctx, ownerID, c.clock.Now()); err != nil {
			c.log.Warn("catalog: failed to record daily add count", zap.Error(err), zap.String("owner_id", ownerID))
		}
	}

	c.log.Info("catalog: item added", zap.String("item_id", it.ItemID.String()), zap.String("vendor_tag", it.VendorTag))
	return it, nil
}

// RemoveItem deletes an item the caller owns (or any item, for an admin).
func (c *Catalog) RemoveItem(ctx context.Context, callerID string, itemID uuid.UUID, isAdmin bool) error {
	it, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !isAdmin && it.OwnerID != callerID {
		return fmt.Errorf("catalog: %s does not own item %s", callerID, itemID)
	}
	return c.store.DeleteItem(ctx, itemID)
}

// ListItems returns everything visible to ownerID: their own items plus
// every globally-shared item.
func (c *Catalog) ListItems(ctx context.Context, ownerID string) ([]model.Item, error) {
	return c.store.ListItemsByOwner(ctx, ownerID)
}

// AdminListAll returns every item in the catalog regardless of owner.
func (c *Catalog) AdminListAll(ctx context.Context) ([]model.Item, error) {
	return c.store.ListAllItems(ctx)
}

// AdminDisableItem pauses polling for itemID without deleting its history.
func (c *Catalog) AdminDisableItem(ctx context.Context, itemID uuid.UUID, disabled bool) error {
	return c.store.SetItemEnabled(ctx, itemID, !disabled)
}

// CanonicalizeURL normalises a user-supplied URL so the same product page
// cannot be added twice under superficially different spellings: lower-cases
// scheme and host, strips a default port, drops the fragment, and sorts
// query parameters. The transform is idempotent: canonicalising an already
// canonical URL returns it unchanged.
func CanonicalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimSuffix(u.Host, ":80")
	u.Host = strings.TrimSuffix(u.Host, ":443")
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if isTrackingParam(k) {
				q.Del(k)
			}
		}
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for i, k := range keys {
			vals := q[k]
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// trackingParams are query keys that vary by referral source without
// changing the page identity; CanonicalizeURL strips them so the same
// product page isn't re-added once per campaign link (§4.2).
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	return trackingParams[key]
}

// InferVendorTag maps a canonical URL's host suffix to a vendor tag using
// the operator-configured table, falling back to the bare registrable
// domain label when no explicit mapping exists.
func InferVendorTag(canonicalURL string, vendorTags map[string]string) string {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()

	suffixes := make([]string, 0, len(vendorTags))
	for suffix := range vendorTags {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			suffixes = append(suffixes, suffix)
		}
	}
	if len(suffixes) > 0 {
		sort.Slice(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })
		return vendorTags[suffixes[0]]
	}

	labels := strings.Split(host, ".")
	if len(labels) >= 2 {
		return labels[len(labels)-2]
	}
	return host
}
