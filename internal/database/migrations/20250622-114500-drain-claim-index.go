package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250622-114500",
		Description: "Composite index matching the drain claim ordering",
		Up: []string{
			// The drain query orders pending items by (priority, created_at);
			// the single-column status index forced a sort on every claim.
			`CREATE INDEX IF NOT EXISTS idx_queue_items_claim ON queue_items(status, priority, created_at)`,
		},
	})
}
