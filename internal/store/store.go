// Package store implements durable persistence for retained messages
// across broker restarts, grounded on the teacher's sqlite3 usage for
// its auth table. Session state is not persisted.
package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pyr33x/goqtt/internal/packet"
	"github.com/pyr33x/goqtt/internal/retained"
)

// Hook is the persistence boundary the broker core can be wired to;
// a no-op Memory implementation is the default, and SQLite below
// gives restart recovery for retained messages.
type Hook interface {
	SaveRetained(m *retained.Message) error
	DeleteRetained(topic string) error
	LoadRetained() ([]*retained.Message, error)
	Close() error
}

// Memory is the zero-configuration Hook: nothing survives a restart.
type Memory struct{}

func (Memory) SaveRetained(*retained.Message) error { return nil }
func (Memory) DeleteRetained(string) error           { return nil }
func (Memory) LoadRetained() ([]*retained.Message, error) {
	return nil, nil
}
func (Memory) Close() error { return nil }

// SQLite persists retained messages (topic, payload, qos) in a single
// table, replacing a topic's row on every retain and deleting it on an
// empty-payload retained publish.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS retained (
		topic TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		qos INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) SaveRetained(m *retained.Message) error {
	_, err := s.db.Exec(
		`INSERT INTO retained (topic, payload, qos) VALUES (?, ?, ?)
		 ON CONFLICT(topic) DO UPDATE SET payload = excluded.payload, qos = excluded.qos`,
		m.Topic, m.Payload, int(m.QoS),
	)
	return err
}

func (s *SQLite) DeleteRetained(topic string) error {
	_, err := s.db.Exec(`DELETE FROM retained WHERE topic = ?`, topic)
	return err
}

func (s *SQLite) LoadRetained() ([]*retained.Message, error) {
	rows, err := s.db.Query(`SELECT topic, payload, qos FROM retained`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*retained.Message
	for rows.Next() {
		m := &retained.Message{}
		var qos int
		if err := rows.Scan(&m.Topic, &m.Payload, &qos); err != nil {
			return nil, err
		}
		m.QoS = packet.QoSLevel(qos)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
