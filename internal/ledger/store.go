package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
)

// Store archives completed runs to SQLite so analytics collaborators can
// replay a run's full ordered history without holding the simulator open.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the archive database and its schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		seed INTEGER NOT NULL,
		events INTEGER NOT NULL,
		trades INTEGER NOT NULL,
		sim_time_ns INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		sim_time_ns INTEGER NOT NULL,
		type TEXT NOT NULL,
		order_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		client_order_id TEXT,
		price INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		trade_id TEXT,
		reason TEXT,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS trades (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		price INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		buy_order_id TEXT NOT NULL,
		sell_order_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		sim_time_ns INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_events_agent ON ledger_events(run_id, agent_id);
	CREATE INDEX IF NOT EXISTS idx_trades_buyer ON trades(run_id, buyer_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RunRecord summarizes an archived run.
type RunRecord struct {
	ID        string
	Symbol    string
	Seed      int64
	Events    int
	Trades    int
	SimTime   time.Duration
	CreatedAt time.Time
}

// SaveRun writes a run's complete history in one transaction.
func (s *Store) SaveRun(run RunRecord, entries []Entry, trades []book.Trade) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, symbol, seed, events, trades, sim_time_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Symbol, run.Seed, len(entries), len(trades), int64(run.SimTime))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	entryStmt, err := tx.Prepare(`
		INSERT INTO ledger_events (run_id, seq, sim_time_ns, type, order_id, agent_id,
			client_order_id, price, quantity, remaining, trade_id, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer entryStmt.Close()

	for _, e := range entries {
		_, err = entryStmt.Exec(run.ID, e.Seq, int64(e.Time), e.Type.String(), e.OrderID,
			e.AgentID, e.ClientOrderID, e.Price, e.Quantity, e.Remaining, e.TradeID, e.Reason)
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", e.Seq, err)
		}
	}

	tradeStmt, err := tx.Prepare(`
		INSERT INTO trades (run_id, seq, id, symbol, price, quantity,
			buy_order_id, sell_order_id, buyer_id, seller_id, sim_time_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()

	for _, t := range trades {
		_, err = tradeStmt.Exec(run.ID, t.Seq, t.ID, t.Symbol, t.Price, t.Quantity,
			t.BuyOrderID, t.SellOrderID, t.BuyerID, t.SellerID, int64(t.Time))
		if err != nil {
			return fmt.Errorf("insert trade %d: %w", t.Seq, err)
		}
	}

	return tx.Commit()
}

// LoadEntries replays an archived run's ledger in sequence order.
func (s *Store) LoadEntries(runID string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT seq, sim_time_ns, type, order_id, agent_id, client_order_id,
			price, quantity, remaining, trade_id, reason
		FROM ledger_events WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var simTime int64
		var typ string
		var clientID, tradeID, reason sql.NullString
		if err := rows.Scan(&e.Seq, &simTime, &typ, &e.OrderID, &e.AgentID, &clientID,
			&e.Price, &e.Quantity, &e.Remaining, &tradeID, &reason); err != nil {
			return nil, err
		}
		e.Time = time.Duration(simTime)
		e.Type, err = parseEventType(typ)
		if err != nil {
			return nil, err
		}
		e.ClientOrderID = clientID.String
		e.TradeID = tradeID.String
		e.Reason = reason.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LoadTrades replays an archived run's trades in sequence order.
func (s *Store) LoadTrades(runID string) ([]book.Trade, error) {
	rows, err := s.db.Query(`
		SELECT seq, id, symbol, price, quantity, buy_order_id, sell_order_id,
			buyer_id, seller_id, sim_time_ns
		FROM trades WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []book.Trade
	for rows.Next() {
		var t book.Trade
		var simTime int64
		if err := rows.Scan(&t.Seq, &t.ID, &t.Symbol, &t.Price, &t.Quantity,
			&t.BuyOrderID, &t.SellOrderID, &t.BuyerID, &t.SellerID, &simTime); err != nil {
			return nil, err
		}
		t.Time = time.Duration(simTime)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Runs lists archived runs, newest first.
func (s *Store) Runs() ([]RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, seed, events, trades, sim_time_ns, created_at
		FROM runs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var simTime int64
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Seed, &r.Events, &r.Trades, &simTime, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.SimTime = time.Duration(simTime)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func parseEventType(s string) (EventType, error) {
	for _, t := range []EventType{EventAck, EventReject, EventFill, EventPartialFill, EventCancelAck, EventCancelReject} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown ledger event type %q", s)
}
