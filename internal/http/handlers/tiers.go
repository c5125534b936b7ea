package handlers

import (
	"context"
	"sort"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
)

// TierInfo is the public view of one subscription tier.
type TierInfo struct {
	Name              string `json:"name"`
	DisplayName       string `json:"display_name"`
	HourlyCallLimit   int    `json:"hourly_call_limit"`
	AccountLimit      int    `json:"account_limit"`
	ReplyLimit        int    `json:"reply_limit"`
	RequestsPerMinute int    `json:"requests_per_minute"`
}

// ListTiersOutput is the public tier listing.
type ListTiersOutput struct {
	Body struct {
		Tiers []TierInfo `json:"tiers"`
	}
}

// ListTiers returns the publicly visible subscription tiers, ordered for
// display. Hidden tiers are omitted.
func (h *Handlers) ListTiers(ctx context.Context, input *struct{}) (*ListTiersOutput, error) {
	type entry struct {
		name   string
		limits constants.TierLimits
	}

	visible := constants.GetVisibleTiers()
	entries := make([]entry, 0, len(visible))
	for name, limits := range visible {
		entries = append(entries, entry{name, limits})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].limits.Order < entries[j].limits.Order
	})

	out := &ListTiersOutput{}
	out.Body.Tiers = make([]TierInfo, 0, len(entries))
	for _, e := range entries {
		out.Body.Tiers = append(out.Body.Tiers, TierInfo{
			Name:              e.name,
			DisplayName:       e.limits.DisplayName,
			HourlyCallLimit:   e.limits.HourlyCallLimit,
			AccountLimit:      e.limits.AccountLimit,
			ReplyLimit:        e.limits.ReplyLimit,
			RequestsPerMinute: e.limits.RequestsPerMinute,
		})
	}
	return out, nil
}
