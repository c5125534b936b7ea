package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "Initial schema",
		Up: []string{
			// Usage counters - one row per (subject, window, action), incremented
			// in place. subject_id is a Clerk user ID, an Instagram account ID,
			// or the literal 'app' for the platform-wide counter.
			`CREATE TABLE IF NOT EXISTS usage_records (
				id TEXT PRIMARY KEY,
				subject_id TEXT NOT NULL,
				subject_type TEXT NOT NULL,
				window_start TEXT NOT NULL,
				action_type TEXT NOT NULL,
				call_count INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(subject_id, subject_type, window_start, action_type)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_subject_window ON usage_records(subject_id, subject_type, window_start)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_window_start ON usage_records(window_start)`,

			// Deferred calls awaiting a window with available budget
			`CREATE TABLE IF NOT EXISTS queue_items (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				account_id TEXT NOT NULL,
				action_type TEXT NOT NULL,
				payload_json TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 5,
				status TEXT NOT NULL DEFAULT 'pending',
				defer_reason TEXT NOT NULL,
				window_start TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				processed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_items_user_id ON queue_items(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_items_account_id ON queue_items(account_id)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status)`,

			// Automation pause flags. scope is 'global' or a Clerk user ID.
			`CREATE TABLE IF NOT EXISTS automation_pause (
				id TEXT PRIMARY KEY,
				scope TEXT UNIQUE NOT NULL,
				paused INTEGER NOT NULL DEFAULT 0,
				reason TEXT NOT NULL,
				window_start TEXT,
				paused_by TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// Drain leases - at most one drainer per window at a time
			`CREATE TABLE IF NOT EXISTS window_leases (
				window_key TEXT PRIMARY KEY,
				holder_id TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,

			// Connected Instagram business accounts
			// user_id is a Clerk user ID (no FK constraint since users are in Clerk)
			`CREATE TABLE IF NOT EXISTS instagram_accounts (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				instagram_user_id TEXT UNIQUE NOT NULL,
				username TEXT NOT NULL,
				access_token_enc TEXT NOT NULL,
				token_expires_at TEXT,
				automation_enabled INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_instagram_accounts_user_id ON instagram_accounts(user_id)`,

			// Local mirror of Clerk Commerce subscriptions
			`CREATE TABLE IF NOT EXISTS subscriptions (
				id TEXT PRIMARY KEY,
				user_id TEXT UNIQUE NOT NULL,
				tier TEXT NOT NULL DEFAULT 'free',
				status TEXT NOT NULL DEFAULT 'active',
				expires_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
	})
}
