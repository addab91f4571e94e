package database

// Migration queries
const (
	createMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			migration_name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`

	selectMigrationsSQL = `SELECT migration_name FROM schema_migrations`

	insertMigrationSQL = `INSERT INTO schema_migrations (migration_name) VALUES ($1)`
)

// Outlet queries
const (
	GetOutletSQL = `
		SELECT id, name, is_active FROM outlets WHERE id = $1`

	GetOutletCredentialsSQL = `
		SELECT COALESCE(gateway_key_id, ''), COALESCE(gateway_key_secret, '')
		FROM outlets WHERE id = $1`

	InsertOutletSQL = `
		INSERT INTO outlets (id, name, is_active, gateway_key_id, gateway_key_secret)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))`
)

// Menu ledger queries
const (
	menuItemColumns = `id, outlet_id, name, description, category, price, quantity, is_available, image_url, created_at, updated_at`

	ReserveItemSQL = `
		UPDATE menu_items
		SET quantity = quantity - $3, is_available = (quantity - $3) > 0, updated_at = NOW()
		WHERE id = $1 AND outlet_id = $2 AND is_available AND quantity >= $3
		RETURNING name, price`

	RestoreItemSQL = `
		UPDATE menu_items
		SET quantity = quantity + $3, is_available = (quantity + $3) > 0, updated_at = NOW()
		WHERE id = $1 AND outlet_id = $2`

	MenuItemExistsSQL = `
		SELECT EXISTS (SELECT 1 FROM menu_items WHERE id = $1 AND outlet_id = $2)`

	GetMenuItemSQL = `
		SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1 AND outlet_id = $2`

	ListMenuSQL = `
		SELECT ` + menuItemColumns + ` FROM menu_items
		WHERE outlet_id = $1
		  AND ($2 = '' OR LOWER(category) = $2)
		  AND ($3 = 'all' OR is_available = ($3 = 'available'))
		ORDER BY category, name`

	InsertMenuItemSQL = `
		INSERT INTO menu_items (id, outlet_id, name, description, category, price, quantity, is_available, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7 > 0, $8)
		RETURNING created_at, updated_at`

	UpdateMenuItemSQL = `
		UPDATE menu_items
		SET name = $3, description = $4, category = $5, price = $6,
		    quantity = $7, is_available = $7 > 0, image_url = $8, updated_at = NOW()
		WHERE id = $1 AND outlet_id = $2
		RETURNING created_at, updated_at`

	SetQuantitySQL = `
		UPDATE menu_items
		SET quantity = $3, is_available = $3 > 0, updated_at = NOW()
		WHERE id = $1 AND outlet_id = $2`

	MenuItemReferencedSQL = `
		SELECT EXISTS (SELECT 1 FROM order_lines WHERE menu_item_id = $1)`

	DeleteMenuItemSQL = `
		DELETE FROM menu_items WHERE id = $1 AND outlet_id = $2`
)

// Order queries
const (
	orderColumns = `id, reference, user_id, outlet_id, total, fulfillment, settlement, payment_channel,
		status, approver_id, notes, time_of_day, created_at, updated_at`

	InsertOrderSQL = `
		INSERT INTO orders (id, reference, user_id, outlet_id, total, fulfillment, settlement,
			payment_channel, status, approver_id, notes, time_of_day, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

	InsertOrderLineSQL = `
		INSERT INTO order_lines (order_id, position, menu_item_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status, changed_by, notes)
		VALUES ($1, $2, $3, $4)`

	TransitionOrderSQL = `
		UPDATE orders
		SET status = $2, approver_id = COALESCE($3, approver_id), updated_at = NOW()
		WHERE reference = $1 AND status = ANY($4)
		RETURNING id`

	GetOrderByReferenceSQL = `
		SELECT ` + orderColumns + ` FROM orders WHERE reference = $1`

	GetOrderLinesSQL = `
		SELECT order_id, menu_item_id, name, quantity, unit_price
		FROM order_lines WHERE order_id = ANY($1)
		ORDER BY order_id, position`

	ListOrdersSQL = `
		SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::uuid IS NULL OR outlet_id = $1)
		  AND ($2::uuid IS NULL OR user_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4`

	GetOrderStatusHistorySQL = `
		SELECT status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = (SELECT id FROM orders WHERE reference = $1)
		ORDER BY changed_at ASC, id ASC`
)

// Transaction queries
const (
	transactionColumns = `id, outlet_id, user_id, gateway_order_id, gateway_payment_id, amount, currency,
		status, channel, metadata, order_reference, failure_reason, created_at, updated_at`

	InsertTransactionSQL = `
		INSERT INTO transactions (id, outlet_id, user_id, gateway_order_id, amount, currency, status, channel, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	GetTransactionSQL = `
		SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	MarkTransactionPaidSQL = `
		UPDATE transactions
		SET status = 'paid', gateway_payment_id = $2, settlement_claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'created'`

	MarkTransactionFailedSQL = `
		UPDATE transactions
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'created'`

	AttachOrderSQL = `
		UPDATE transactions SET order_reference = $2, updated_at = NOW()
		WHERE id = $1 AND order_reference IS NULL`

	ClaimSettlementSQL = `
		UPDATE transactions SET settlement_claimed_at = NOW()
		WHERE id = $1 AND status = 'paid' AND order_reference IS NULL AND failure_reason IS NULL
		  AND (settlement_claimed_at IS NULL OR settlement_claimed_at < NOW() - make_interval(secs => $2))`

	ReleaseSettlementSQL = `
		UPDATE transactions SET settlement_claimed_at = NULL
		WHERE id = $1 AND order_reference IS NULL`

	RecordSettlementFailureSQL = `
		UPDATE transactions SET failure_reason = $2, updated_at = NOW()
		WHERE id = $1`
)
