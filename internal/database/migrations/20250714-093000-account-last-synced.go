package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250714-093000",
		Description: "Track last profile sync per Instagram account",
		Up: []string{
			`ALTER TABLE instagram_accounts ADD COLUMN last_synced_at TEXT`,
		},
	})
}
