package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"arbot/internal/models"

	sqlite3 "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу %s: %w", path, err)
	}
	// One writer: the robot is single threaded and sqlite serialises writes anyway.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать схему: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS opening_flows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		value_to_use REAL NOT NULL,
		suggested_closing_price REAL NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_opening_flows_status ON opening_flows(status, created_at);

	CREATE TABLE IF NOT EXISTS opening_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		flow_id INTEGER NOT NULL REFERENCES opening_flows(id),
		order_id TEXT NOT NULL,
		role TEXT NOT NULL,
		price REAL NOT NULL,
		amount REAL NOT NULL,
		qty REAL NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_opening_orders_flow ON opening_orders(flow_id);
	CREATE INDEX IF NOT EXISTS idx_opening_orders_order ON opening_orders(order_id);

	CREATE TABLE IF NOT EXISTS closing_flows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		side TEXT NOT NULL,
		desired_price REAL NOT NULL,
		qty REAL NOT NULL,
		amount REAL NOT NULL,
		done INTEGER NOT NULL DEFAULT 0,
		crypto_profit REAL NOT NULL DEFAULT 0,
		fiat_profit REAL NOT NULL DEFAULT 0,
		fx_rate REAL NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS open_positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		side TEXT NOT NULL,
		transaction_id TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL,
		opening_flow_id INTEGER NOT NULL REFERENCES opening_flows(id),
		closing_flow_id INTEGER REFERENCES closing_flows(id),
		price REAL NOT NULL,
		amount REAL NOT NULL,
		qty REAL NOT NULL,
		suggested_closing_price REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_open_positions_open ON open_positions(side, closing_flow_id);

	CREATE TABLE IF NOT EXISTS close_positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		flow_id INTEGER NOT NULL REFERENCES closing_flows(id),
		order_id TEXT NOT NULL,
		amount REAL,
		qty REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_close_positions_flow ON close_positions(flow_id);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		hold INTEGER NOT NULL DEFAULT 0,
		last_warning INTEGER NOT NULL DEFAULT 0,
		buying_amount_to_spend REAL,
		selling_quantity_to_sell REAL,
		buying_profit REAL,
		selling_profit REAL,
		buying_fx_rate REAL,
		selling_fx_rate REAL,
		fiat_warning REAL,
		fiat_stop REAL,
		crypto_warning REAL,
		crypto_stop REAL,
		maker_fiat REAL NOT NULL DEFAULT 0,
		maker_crypto REAL NOT NULL DEFAULT 0,
		taker_fiat REAL NOT NULL DEFAULT 0,
		taker_crypto REAL NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO settings (id) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ============================================================================
// Opening flows
// ============================================================================

const openingFlowColumns = "id, side, price, value_to_use, suggested_closing_price, status, created_at"

func (s *SQLite) CreateOpeningFlow(ctx context.Context, flow *models.OpeningFlow) error {
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = s.now()
	}
	if flow.Status == "" {
		flow.Status = models.FlowStatusExecuting
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO opening_flows (side, price, value_to_use, suggested_closing_price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, flow.Side, flow.Price, flow.ValueToUse, flow.SuggestedClosingPrice, flow.Status, toNanos(flow.CreatedAt))
	if err != nil {
		return fmt.Errorf("не удалось сохранить поток открытия: %w", err)
	}
	flow.ID, err = res.LastInsertId()
	return err
}

func (s *SQLite) OpeningFlow(ctx context.Context, id int64) (models.OpeningFlow, error) {
	flows, err := s.queryOpeningFlows(ctx, "WHERE id = ?", id)
	if err != nil {
		return models.OpeningFlow{}, err
	}
	if len(flows) == 0 {
		return models.OpeningFlow{}, fmt.Errorf("поток открытия #%d: %w", id, ErrNotFound)
	}
	return flows[0], nil
}

func (s *SQLite) UpdateOpeningFlowStatus(ctx context.Context, id int64, status models.FlowStatus) error {
	return s.advanceStatus(ctx, "opening_flows", id, status)
}

func (s *SQLite) ActiveOpeningFlows(ctx context.Context) ([]models.OpeningFlow, error) {
	return s.queryOpeningFlows(ctx, "WHERE status != ? ORDER BY created_at ASC, id ASC", models.FlowStatusFinalised)
}

func (s *SQLite) OldActiveOpeningFlows(ctx context.Context, threshold time.Time) ([]models.OpeningFlow, error) {
	return s.queryOpeningFlows(ctx, "WHERE status != ? AND created_at < ? ORDER BY created_at ASC, id ASC",
		models.FlowStatusFinalised, toNanos(threshold))
}

func (s *SQLite) RecentOpeningFlows(ctx context.Context, threshold time.Time) ([]models.OpeningFlow, error) {
	return s.queryOpeningFlows(ctx, "WHERE created_at > ? ORDER BY created_at ASC, id ASC", toNanos(threshold))
}

func (s *SQLite) queryOpeningFlows(ctx context.Context, where string, args ...interface{}) ([]models.OpeningFlow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+openingFlowColumns+" FROM opening_flows "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить потоки открытия: %w", err)
	}
	defer rows.Close()

	var flows []models.OpeningFlow
	for rows.Next() {
		var f models.OpeningFlow
		var created int64
		if err := rows.Scan(&f.ID, &f.Side, &f.Price, &f.ValueToUse, &f.SuggestedClosingPrice, &f.Status, &created); err != nil {
			return nil, fmt.Errorf("не удалось прочитать поток открытия: %w", err)
		}
		f.CreatedAt = fromNanos(created)
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// ============================================================================
// Opening orders
// ============================================================================

const openingOrderColumns = "id, flow_id, order_id, role, price, amount, qty, status, created_at"

func (s *SQLite) CreateOpeningOrder(ctx context.Context, order *models.OpeningOrder) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	if order.Status == "" {
		order.Status = models.FlowStatusExecuting
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO opening_orders (flow_id, order_id, role, price, amount, qty, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, order.FlowID, order.OrderID, order.Role, order.Price, order.Amount, order.Qty, order.Status, toNanos(order.CreatedAt))
	if err != nil {
		return fmt.Errorf("не удалось сохранить ордер открытия: %w", err)
	}
	order.ID, err = res.LastInsertId()
	return err
}

func (s *SQLite) OpeningOrders(ctx context.Context, flowID int64) ([]models.OpeningOrder, error) {
	return s.queryOpeningOrders(ctx, "WHERE flow_id = ? ORDER BY id ASC", flowID)
}

func (s *SQLite) OpeningOrderByOrderID(ctx context.Context, orderID string) (models.OpeningOrder, error) {
	orders, err := s.queryOpeningOrders(ctx, "WHERE order_id = ? ORDER BY id DESC LIMIT 1", orderID)
	if err != nil {
		return models.OpeningOrder{}, err
	}
	if len(orders) == 0 {
		return models.OpeningOrder{}, fmt.Errorf("ордер открытия %s: %w", orderID, ErrNotFound)
	}
	return orders[0], nil
}

func (s *SQLite) UpdateOpeningOrderStatus(ctx context.Context, id int64, status models.FlowStatus) error {
	return s.advanceStatus(ctx, "opening_orders", id, status)
}

func (s *SQLite) queryOpeningOrders(ctx context.Context, where string, args ...interface{}) ([]models.OpeningOrder, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+openingOrderColumns+" FROM opening_orders "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить ордера открытия: %w", err)
	}
	defer rows.Close()

	var orders []models.OpeningOrder
	for rows.Next() {
		var o models.OpeningOrder
		var created int64
		if err := rows.Scan(&o.ID, &o.FlowID, &o.OrderID, &o.Role, &o.Price, &o.Amount, &o.Qty, &o.Status, &created); err != nil {
			return nil, fmt.Errorf("не удалось прочитать ордер открытия: %w", err)
		}
		o.CreatedAt = fromNanos(created)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *SQLite) advanceStatus(ctx context.Context, table string, id int64, status models.FlowStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer tx.Rollback()

	var current models.FlowStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM "+table+" WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s #%d: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("не удалось прочитать статус %s #%d: %w", table, id, err)
	}
	if !current.CanAdvanceTo(status) {
		return fmt.Errorf("%s #%d %s -> %s: %w", table, id, current, status, ErrInvalidTransition)
	}
	if current == status {
		return nil
	}

	if _, err := tx.ExecContext(ctx, "UPDATE "+table+" SET status = ? WHERE id = ?", status, id); err != nil {
		return fmt.Errorf("не удалось обновить статус %s #%d: %w", table, id, err)
	}
	return tx.Commit()
}

// ============================================================================
// Open positions
// ============================================================================

const openPositionColumns = "id, side, transaction_id, order_id, opening_flow_id, closing_flow_id, price, amount, qty, suggested_closing_price, created_at"

func (s *SQLite) CreateOpenPosition(ctx context.Context, pos *models.OpenPosition) error {
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO open_positions (side, transaction_id, order_id, opening_flow_id, closing_flow_id, price, amount, qty, suggested_closing_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pos.Side, pos.TransactionID, pos.OrderID, pos.OpeningFlowID, nullID(pos.ClosingFlowID), pos.Price, pos.Amount, pos.Qty, pos.SuggestedClosingPrice, toNanos(pos.CreatedAt))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("сделка %s: %w", pos.TransactionID, ErrDuplicate)
		}
		return fmt.Errorf("не удалось сохранить открытую позицию: %w", err)
	}
	pos.ID, err = res.LastInsertId()
	return err
}

func (s *SQLite) TransactionBooked(ctx context.Context, transactionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM open_positions WHERE transaction_id = ?", transactionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("не удалось проверить сделку %s: %w", transactionID, err)
	}
	return count > 0, nil
}

func (s *SQLite) LatestOpenPosition(ctx context.Context) (models.OpenPosition, error) {
	positions, err := s.queryOpenPositions(ctx, "ORDER BY created_at DESC, id DESC LIMIT 1")
	if err != nil {
		return models.OpenPosition{}, err
	}
	if len(positions) == 0 {
		return models.OpenPosition{}, fmt.Errorf("открытых позиций нет: %w", ErrNotFound)
	}
	return positions[0], nil
}

func (s *SQLite) OpenPositions(ctx context.Context, side models.OrderSide) ([]models.OpenPosition, error) {
	return s.queryOpenPositions(ctx, "WHERE side = ? AND closing_flow_id IS NULL ORDER BY id ASC", side)
}

func (s *SQLite) ClosingFlowPositions(ctx context.Context, closingFlowID int64) ([]models.OpenPosition, error) {
	return s.queryOpenPositions(ctx, "WHERE closing_flow_id = ? ORDER BY id ASC", closingFlowID)
}

func (s *SQLite) OpeningFlowPositions(ctx context.Context, openingFlowID int64) ([]models.OpenPosition, error) {
	return s.queryOpenPositions(ctx, "WHERE opening_flow_id = ? ORDER BY id ASC", openingFlowID)
}

func (s *SQLite) queryOpenPositions(ctx context.Context, where string, args ...interface{}) ([]models.OpenPosition, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+openPositionColumns+" FROM open_positions "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить открытые позиции: %w", err)
	}
	defer rows.Close()

	var positions []models.OpenPosition
	for rows.Next() {
		var p models.OpenPosition
		var closing sql.NullInt64
		var created int64
		if err := rows.Scan(&p.ID, &p.Side, &p.TransactionID, &p.OrderID, &p.OpeningFlowID, &closing, &p.Price, &p.Amount, &p.Qty, &p.SuggestedClosingPrice, &created); err != nil {
			return nil, fmt.Errorf("не удалось прочитать открытую позицию: %w", err)
		}
		p.ClosingFlowID = closing.Int64
		p.CreatedAt = fromNanos(created)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ============================================================================
// Closing flows
// ============================================================================

const closingFlowColumns = "id, side, desired_price, qty, amount, done, crypto_profit, fiat_profit, fx_rate, created_at"

func (s *SQLite) CreateClosingFlow(ctx context.Context, flow *models.ClosingFlow, positionIDs []int64) error {
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = s.now()
	}
	if flow.FxRate == 0 {
		flow.FxRate = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO closing_flows (side, desired_price, qty, amount, done, crypto_profit, fiat_profit, fx_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, flow.Side, flow.DesiredPrice, flow.Qty, flow.Amount, flow.Done, flow.CryptoProfit, flow.FiatProfit, flow.FxRate, toNanos(flow.CreatedAt))
	if err != nil {
		return fmt.Errorf("не удалось сохранить поток закрытия: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, posID := range positionIDs {
		res, err := tx.ExecContext(ctx, "UPDATE open_positions SET closing_flow_id = ? WHERE id = ? AND closing_flow_id IS NULL", id, posID)
		if err != nil {
			return fmt.Errorf("не удалось привязать позицию #%d: %w", posID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("позиция #%d: %w", posID, ErrAlreadyClaimed)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("не удалось зафиксировать поток закрытия: %w", err)
	}
	flow.ID = id
	return nil
}

func (s *SQLite) ActiveClosingFlows(ctx context.Context) ([]models.ClosingFlow, error) {
	return s.queryClosingFlows(ctx, "WHERE done = 0 ORDER BY id ASC")
}

// ClosingFlows returns the latest flows, newest first.
func (s *SQLite) ClosingFlows(ctx context.Context, limit int) ([]models.ClosingFlow, error) {
	return s.queryClosingFlows(ctx, "ORDER BY id DESC LIMIT ?", limit)
}

func (s *SQLite) FinishClosingFlow(ctx context.Context, flow models.ClosingFlow) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE closing_flows SET done = 1, crypto_profit = ?, fiat_profit = ?, fx_rate = ?
		WHERE id = ? AND done = 0
	`, flow.CryptoProfit, flow.FiatProfit, flow.FxRate, flow.ID)
	if err != nil {
		return fmt.Errorf("не удалось завершить поток закрытия #%d: %w", flow.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("активный поток закрытия #%d: %w", flow.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) queryClosingFlows(ctx context.Context, where string, args ...interface{}) ([]models.ClosingFlow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+closingFlowColumns+" FROM closing_flows "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить потоки закрытия: %w", err)
	}
	defer rows.Close()

	var flows []models.ClosingFlow
	for rows.Next() {
		var f models.ClosingFlow
		var created int64
		if err := rows.Scan(&f.ID, &f.Side, &f.DesiredPrice, &f.Qty, &f.Amount, &f.Done, &f.CryptoProfit, &f.FiatProfit, &f.FxRate, &created); err != nil {
			return nil, fmt.Errorf("не удалось прочитать поток закрытия: %w", err)
		}
		f.CreatedAt = fromNanos(created)
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

func (s *SQLite) CreateClosePosition(ctx context.Context, pos *models.ClosePosition) error {
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO close_positions (flow_id, order_id, amount, qty, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, pos.FlowID, pos.OrderID, nullFloat(pos.Amount, pos.Filled), nullFloat(pos.Qty, pos.Filled), toNanos(pos.CreatedAt))
	if err != nil {
		return fmt.Errorf("не удалось сохранить позицию закрытия: %w", err)
	}
	pos.ID, err = res.LastInsertId()
	return err
}

func (s *SQLite) ClosePositions(ctx context.Context, flowID int64) ([]models.ClosePosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flow_id, order_id, amount, qty, created_at
		FROM close_positions WHERE flow_id = ? ORDER BY id ASC
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить позиции закрытия: %w", err)
	}
	defer rows.Close()

	var positions []models.ClosePosition
	for rows.Next() {
		var p models.ClosePosition
		var amount, qty sql.NullFloat64
		var created int64
		if err := rows.Scan(&p.ID, &p.FlowID, &p.OrderID, &amount, &qty, &created); err != nil {
			return nil, fmt.Errorf("не удалось прочитать позицию закрытия: %w", err)
		}
		p.Amount = amount.Float64
		p.Qty = qty.Float64
		p.Filled = amount.Valid && qty.Valid
		p.CreatedAt = fromNanos(created)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *SQLite) FillClosePosition(ctx context.Context, id int64, amount, qty float64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE close_positions SET amount = ?, qty = ? WHERE id = ?", amount, qty, id)
	if err != nil {
		return fmt.Errorf("не удалось обновить позицию закрытия #%d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("позиция закрытия #%d: %w", id, ErrNotFound)
	}
	return nil
}

// ============================================================================
// Settings
// ============================================================================

func (s *SQLite) Settings(ctx context.Context) (models.Settings, error) {
	var st models.Settings
	var lastWarning, updated int64
	overrides := make([]sql.NullFloat64, 10)

	err := s.db.QueryRowContext(ctx, `
		SELECT hold, last_warning,
			buying_amount_to_spend, selling_quantity_to_sell, buying_profit, selling_profit,
			buying_fx_rate, selling_fx_rate, fiat_warning, fiat_stop, crypto_warning, crypto_stop,
			maker_fiat, maker_crypto, taker_fiat, taker_crypto, updated_at
		FROM settings WHERE id = 1
	`).Scan(&st.Hold, &lastWarning,
		&overrides[0], &overrides[1], &overrides[2], &overrides[3],
		&overrides[4], &overrides[5], &overrides[6], &overrides[7], &overrides[8], &overrides[9],
		&st.MakerFiat, &st.MakerCrypto, &st.TakerFiat, &st.TakerCrypto, &updated)
	if err != nil {
		return models.Settings{}, fmt.Errorf("не удалось прочитать настройки: %w", err)
	}

	targets := overrideTargets(&st)
	for i, val := range overrides {
		if val.Valid {
			v := val.Float64
			*targets[i] = &v
		}
	}
	st.LastWarning = fromNanos(lastWarning)
	st.UpdatedAt = fromNanos(updated)
	return st, nil
}

func (s *SQLite) SaveSettings(ctx context.Context, st models.Settings) error {
	st.UpdatedAt = s.now()

	args := []interface{}{st.Hold, toNanos(st.LastWarning)}
	for _, target := range overrideTargets(&st) {
		if *target == nil {
			args = append(args, nil)
		} else {
			args = append(args, **target)
		}
	}
	args = append(args, st.MakerFiat, st.MakerCrypto, st.TakerFiat, st.TakerCrypto, toNanos(st.UpdatedAt))

	_, err := s.db.ExecContext(ctx, `
		UPDATE settings SET hold = ?, last_warning = ?,
			buying_amount_to_spend = ?, selling_quantity_to_sell = ?, buying_profit = ?, selling_profit = ?,
			buying_fx_rate = ?, selling_fx_rate = ?, fiat_warning = ?, fiat_stop = ?, crypto_warning = ?, crypto_stop = ?,
			maker_fiat = ?, maker_crypto = ?, taker_fiat = ?, taker_crypto = ?, updated_at = ?
		WHERE id = 1
	`, args...)
	if err != nil {
		return fmt.Errorf("не удалось сохранить настройки: %w", err)
	}
	return nil
}

func (s *SQLite) SaveBalances(ctx context.Context, makerFiat, makerCrypto, takerFiat, takerCrypto float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settings SET maker_fiat = ?, maker_crypto = ?, taker_fiat = ?, taker_crypto = ?, updated_at = ?
		WHERE id = 1
	`, makerFiat, makerCrypto, takerFiat, takerCrypto, toNanos(s.now()))
	if err != nil {
		return fmt.Errorf("не удалось сохранить балансы: %w", err)
	}
	return nil
}

func (s *SQLite) SetHold(ctx context.Context, hold bool) error {
	_, err := s.db.ExecContext(ctx, "UPDATE settings SET hold = ?, updated_at = ? WHERE id = 1", hold, toNanos(s.now()))
	if err != nil {
		return fmt.Errorf("не удалось изменить hold: %w", err)
	}
	return nil
}

func (s *SQLite) SetLastWarning(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE settings SET last_warning = ? WHERE id = 1", toNanos(at))
	if err != nil {
		return fmt.Errorf("не удалось сохранить время предупреждения: %w", err)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func nullID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

func nullFloat(v float64, valid bool) interface{} {
	if !valid {
		return nil
	}
	return v
}

// overrideTargets lists the nullable settings columns in table order.
func overrideTargets(st *models.Settings) []**float64 {
	return []**float64{
		&st.BuyingAmountToSpend, &st.SellingQuantityToSell, &st.BuyingProfit, &st.SellingProfit,
		&st.BuyingFxRate, &st.SellingFxRate, &st.FiatWarning, &st.FiatStop, &st.CryptoWarning, &st.CryptoStop,
	}
}
