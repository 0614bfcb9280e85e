// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/sideline-ai/sideline/schema"
)

// createSchema creates the log's tables on a fresh connection. Runs
// via the pool's OnConnect hook, so it must be idempotent.
func createSchema(conn *sqlite.Conn) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS messages (
    topic       TEXT    NOT NULL,
    seq         INTEGER NOT NULL,
    envelope    BLOB    NOT NULL,
    compression INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    PRIMARY KEY (topic, seq)
);
CREATE TABLE IF NOT EXISTS cursors (
    topic    TEXT    NOT NULL,
    grp      TEXT    NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (topic, grp)
);
CREATE TABLE IF NOT EXISTS attempts (
    topic TEXT    NOT NULL,
    grp   TEXT    NOT NULL,
    seq   INTEGER NOT NULL,
    count INTEGER NOT NULL,
    PRIMARY KEY (topic, grp, seq)
);
CREATE TABLE IF NOT EXISTS dead_letters (
    topic     TEXT    NOT NULL,
    grp       TEXT    NOT NULL,
    seq       INTEGER NOT NULL,
    reason    TEXT    NOT NULL,
    dead_at   INTEGER NOT NULL,
    PRIMARY KEY (topic, grp, seq)
);`
	if err := sqlitex.ExecScript(conn, ddl); err != nil {
		return fmt.Errorf("eventlog: creating schema: %w", err)
	}
	return nil
}

// insertMessage appends a message to a topic, assigning the next
// per-topic sequence number. Runs in a savepoint so the read-max and
// insert are atomic against concurrent publishers.
func insertMessage(conn *sqlite.Conn, topic schema.Topic, blob []byte, tag compressionTag, createdAt time.Time) (seq int64, err error) {
	defer sqlitex.Save(conn)(&err)

	err = sqlitex.Execute(conn, `SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE topic = ?`, &sqlitex.ExecOptions{
		Args: []any{string(topic)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			seq = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("eventlog: next sequence for %s: %w", topic, err)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO messages (topic, seq, envelope, compression, created_at) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{string(topic), seq, blob, int64(tag), createdAt.UnixMilli()},
		})
	if err != nil {
		return 0, fmt.Errorf("eventlog: appending to %s: %w", topic, err)
	}
	return seq, nil
}

// ensureGroup creates the consumer-group cursor at the earliest log
// position if the group does not exist. Idempotent: an existing
// group's position is never touched, so re-subscribing cannot erase
// prior progress.
func ensureGroup(conn *sqlite.Conn, topic schema.Topic, group string) error {
	err := sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO cursors (topic, grp, position) VALUES (?, ?, 0)`,
		&sqlitex.ExecOptions{Args: []any{string(topic), group}})
	if err != nil {
		return fmt.Errorf("eventlog: ensuring group %s on %s: %w", group, topic, err)
	}
	return nil
}

// cursorPosition returns the group's last-acknowledged sequence.
func cursorPosition(conn *sqlite.Conn, topic schema.Topic, group string) (int64, error) {
	var position int64
	found := false
	err := sqlitex.Execute(conn, `SELECT position FROM cursors WHERE topic = ? AND grp = ?`, &sqlitex.ExecOptions{
		Args: []any{string(topic), group},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			position = stmt.ColumnInt64(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("eventlog: reading cursor %s/%s: %w", topic, group, err)
	}
	if !found {
		return 0, fmt.Errorf("eventlog: no cursor for %s/%s", topic, group)
	}
	return position, nil
}

// storedMessage is one row read back from the messages table.
type storedMessage struct {
	seq  int64
	blob []byte
	tag  compressionTag
}

// nextAfter returns the first message on a topic with a sequence
// greater than after, or ok=false when the group is caught up.
func nextAfter(conn *sqlite.Conn, topic schema.Topic, after int64) (message storedMessage, ok bool, err error) {
	err = sqlitex.Execute(conn,
		`SELECT seq, envelope, compression FROM messages WHERE topic = ? AND seq > ? ORDER BY seq LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{string(topic), after},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				message.seq = stmt.ColumnInt64(0)
				message.blob = make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, message.blob)
				message.tag = compressionTag(stmt.ColumnInt64(2))
				ok = true
				return nil
			},
		})
	if err != nil {
		return storedMessage{}, false, fmt.Errorf("eventlog: reading %s after %d: %w", topic, after, err)
	}
	return message, ok, nil
}

// advanceCursor acknowledges a message by moving the group's cursor
// forward. The position guard keeps the cursor monotonic even if two
// consumers in one group race.
func advanceCursor(conn *sqlite.Conn, topic schema.Topic, group string, seq int64) error {
	err := sqlitex.Execute(conn,
		`UPDATE cursors SET position = ? WHERE topic = ? AND grp = ? AND position < ?`,
		&sqlitex.ExecOptions{Args: []any{seq, string(topic), group, seq}})
	if err != nil {
		return fmt.Errorf("eventlog: advancing cursor %s/%s to %d: %w", topic, group, seq, err)
	}
	return nil
}

// incrementAttempts bumps the delivery-attempt counter for a message
// within a group and returns the new count.
func incrementAttempts(conn *sqlite.Conn, topic schema.Topic, group string, seq int64) (count int64, err error) {
	defer sqlitex.Save(conn)(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO attempts (topic, grp, seq, count) VALUES (?, ?, ?, 1)
		 ON CONFLICT (topic, grp, seq) DO UPDATE SET count = count + 1`,
		&sqlitex.ExecOptions{Args: []any{string(topic), group, seq}})
	if err != nil {
		return 0, fmt.Errorf("eventlog: counting attempt %s/%s/%d: %w", topic, group, seq, err)
	}
	err = sqlitex.Execute(conn, `SELECT count FROM attempts WHERE topic = ? AND grp = ? AND seq = ?`, &sqlitex.ExecOptions{
		Args: []any{string(topic), group, seq},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("eventlog: reading attempt count %s/%s/%d: %w", topic, group, seq, err)
	}
	return count, nil
}

// clearAttempts removes the attempt counter after an ack or a
// dead-letter, so the row count stays bounded by in-flight messages.
func clearAttempts(conn *sqlite.Conn, topic schema.Topic, group string, seq int64) error {
	err := sqlitex.Execute(conn, `DELETE FROM attempts WHERE topic = ? AND grp = ? AND seq = ?`,
		&sqlitex.ExecOptions{Args: []any{string(topic), group, seq}})
	if err != nil {
		return fmt.Errorf("eventlog: clearing attempts %s/%s/%d: %w", topic, group, seq, err)
	}
	return nil
}

// insertDeadLetter records a poison message for a group and is paired
// with a cursor advance so the group skips it.
func insertDeadLetter(conn *sqlite.Conn, topic schema.Topic, group string, seq int64, reason string, at time.Time) error {
	err := sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO dead_letters (topic, grp, seq, reason, dead_at) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{string(topic), group, seq, reason, at.UnixMilli()}})
	if err != nil {
		return fmt.Errorf("eventlog: dead-lettering %s/%s/%d: %w", topic, group, seq, err)
	}
	return nil
}

// selectDeadLetters reads a group's dead letters in sequence order.
func selectDeadLetters(conn *sqlite.Conn, topic schema.Topic, group string) ([]DeadLetter, error) {
	var letters []DeadLetter
	err := sqlitex.Execute(conn,
		`SELECT seq, reason, dead_at FROM dead_letters WHERE topic = ? AND grp = ? ORDER BY seq`,
		&sqlitex.ExecOptions{
			Args: []any{string(topic), group},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				letters = append(letters, DeadLetter{
					Topic:  topic,
					Group:  group,
					Seq:    stmt.ColumnInt64(0),
					Reason: stmt.ColumnText(1),
					DeadAt: time.UnixMilli(stmt.ColumnInt64(2)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading dead letters %s/%s: %w", topic, group, err)
	}
	return letters, nil
}
