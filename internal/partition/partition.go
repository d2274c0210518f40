package partition

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jinyphp/chat-sub002/internal/models"
)

// Partition is an open handle to one room's storage file. All ids are local
// to this partition; message ids increase strictly in insertion order.
type Partition struct {
	roomID int64
	path   string
	db     *sql.DB
}

// RoomID returns the owning room id.
func (p *Partition) RoomID() int64 { return p.roomID }

// Path returns the partition file location.
func (p *Partition) Path() string { return p.path }

// Close closes the underlying database handle.
func (p *Partition) Close() error {
	return p.db.Close()
}

func (p *Partition) storageErr(op string, err error) error {
	return &StorageError{RoomID: p.roomID, Op: op, Err: err}
}

const messageColumns = `id, sender_uuid, sender_name, message_type, content,
	content_encrypted, reply_to_id, thread_root_id, is_edited, is_deleted,
	is_pinned, is_system, reactions, mentions, reply_count, reaction_count,
	read_count, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	m := &models.Message{}
	var sender, encrypted sql.NullString
	err := row.Scan(
		&m.ID,
		&sender,
		&m.SenderName,
		&m.Type,
		&m.Content,
		&encrypted,
		&m.ReplyToID,
		&m.ThreadRootID,
		&m.IsEdited,
		&m.IsDeleted,
		&m.IsPinned,
		&m.IsSystem,
		&m.Reactions,
		&m.Mentions,
		&m.ReplyCount,
		&m.ReactionCount,
		&m.ReadCount,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.SenderUUID = sender.String
	m.ContentEncrypted = encrypted.String
	return m, nil
}

// InsertMessage appends a message row and fills in its id and timestamps.
// When the message is a reply, the parent's reply_count is bumped; the parent
// may already be soft-deleted, which is fine.
func (p *Partition) InsertMessage(ctx context.Context, m *models.Message) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Reactions == "" {
		m.Reactions = "{}"
	}
	if m.Mentions == "" {
		m.Mentions = "[]"
	}

	var sender any
	if m.SenderUUID != "" {
		sender = m.SenderUUID
	}
	var encrypted any
	if m.ContentEncrypted != "" {
		encrypted = m.ContentEncrypted
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO messages (sender_uuid, sender_name, message_type, content,
			content_encrypted, reply_to_id, thread_root_id, is_system,
			reactions, mentions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sender, m.SenderName, m.Type, m.Content, encrypted,
		m.ReplyToID, m.ThreadRootID, m.IsSystem, m.Reactions, m.Mentions, now, now)
	if err != nil {
		return p.storageErr("insert", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return p.storageErr("insert", err)
	}
	m.ID = id

	if m.ReplyToID != nil {
		_, err = p.db.ExecContext(ctx, `
			UPDATE messages SET reply_count = reply_count + 1 WHERE id = ?
		`, *m.ReplyToID)
		if err != nil {
			return p.storageErr("insert", err)
		}
	}
	return nil
}

// GetMessage retrieves one message by partition-local id. Soft-deleted rows
// still resolve.
func (p *Partition) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	m, err := scanMessage(p.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, p.storageErr("get", err)
	}
	return m, nil
}

// MessagesAfter returns up to limit messages with id greater than lastID, in
// id order. This is the delivery loop's poll query.
func (p *Partition) MessagesAfter(ctx context.Context, lastID int64, limit int) ([]models.Message, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE id > ?
		ORDER BY id
		LIMIT ?
	`, lastID, limit)
	if err != nil {
		return nil, p.storageErr("poll", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, p.storageErr("poll", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, p.storageErr("poll", err)
	}
	return messages, nil
}

// LatestMessageID returns the highest message id, or 0 on an empty partition.
func (p *Partition) LatestMessageID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := p.db.QueryRowContext(ctx, `SELECT MAX(id) FROM messages`).Scan(&id)
	if err != nil {
		return 0, p.storageErr("latest", err)
	}
	return id.Int64, nil
}

// LastMessageTimeBySender returns when the sender last posted, nil if never.
// Used for the slow-mode cooldown check.
func (p *Partition) LastMessageTimeBySender(ctx context.Context, senderUUID string) (*time.Time, error) {
	var t time.Time
	err := p.db.QueryRowContext(ctx, `
		SELECT created_at FROM messages
		WHERE sender_uuid = ?
		ORDER BY id DESC LIMIT 1
	`, senderUUID).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, p.storageErr("slowmode", err)
	}
	return &t, nil
}

// DailyStats returns the stats row for a YYYY-MM-DD date, zero-valued if the
// row does not exist yet.
func (p *Partition) DailyStats(ctx context.Context, date string) (*models.DailyStats, error) {
	s := &models.DailyStats{Date: date}
	err := p.db.QueryRowContext(ctx, `
		SELECT message_count, active_senders, file_count
		FROM room_daily_stats WHERE stat_date = ?
	`, date).Scan(&s.MessageCount, &s.ActiveSenders, &s.FileCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, nil
		}
		return nil, p.storageErr("stats", err)
	}
	return s, nil
}

// BumpDailyStats increments the message counter for date, creating the row
// when absent, and refreshes the distinct-sender count.
func (p *Partition) BumpDailyStats(ctx context.Context, date string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO room_daily_stats (stat_date, message_count)
		VALUES (?, 1)
		ON CONFLICT(stat_date) DO UPDATE SET message_count = message_count + 1
	`, date)
	if err != nil {
		return p.storageErr("stats", err)
	}

	_, err = p.db.ExecContext(ctx, `
		UPDATE room_daily_stats SET active_senders = (
			SELECT COUNT(DISTINCT sender_uuid) FROM messages
			WHERE date(created_at) = ? AND sender_uuid IS NOT NULL
		) WHERE stat_date = ?
	`, date, date)
	if err != nil {
		return p.storageErr("stats", err)
	}
	return nil
}

// MarkRead records a read receipt. Upsert semantics: the first read inserts
// and bumps the message's read_count, repeats are no-ops. Returns whether the
// receipt was new.
func (p *Partition) MarkRead(ctx context.Context, messageID int64, readerUUID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reads (message_id, reader_uuid, read_at)
		VALUES (?, ?, ?)
	`, messageID, readerUUID, time.Now().UTC())
	if err != nil {
		return false, p.storageErr("read", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, p.storageErr("read", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = p.db.ExecContext(ctx, `
		UPDATE messages SET read_count = read_count + 1 WHERE id = ?
	`, messageID)
	if err != nil {
		return false, p.storageErr("read", err)
	}
	return true, nil
}

// AddTranslation caches a translation for one locale, overwriting a stale one.
func (p *Partition) AddTranslation(ctx context.Context, messageID int64, locale, content string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO message_translations (message_id, locale, content, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, locale) DO UPDATE SET content = excluded.content
	`, messageID, locale, content, time.Now().UTC())
	if err != nil {
		return p.storageErr("translation", err)
	}
	return nil
}

// AddAttachment records file metadata for a message and bumps the daily file
// counter.
func (p *Partition) AddAttachment(ctx context.Context, a *models.Attachment) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO file_attachments (message_id, file_name, file_path, mime_type, byte_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.MessageID, a.FileName, a.FilePath, a.MimeType, a.ByteSize, now)
	if err != nil {
		return p.storageErr("attachment", err)
	}
	a.ID, _ = res.LastInsertId()

	date := now.Format("2006-01-02")
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO room_daily_stats (stat_date, file_count)
		VALUES (?, 1)
		ON CONFLICT(stat_date) DO UPDATE SET file_count = file_count + 1
	`, date)
	if err != nil {
		return p.storageErr("attachment", err)
	}
	return nil
}

// Favourite marks a message as a favourite of userUUID. Idempotent.
func (p *Partition) Favourite(ctx context.Context, messageID int64, userUUID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_favourites (message_id, user_uuid, created_at)
		VALUES (?, ?, ?)
	`, messageID, userUUID, time.Now().UTC())
	if err != nil {
		return p.storageErr("favourite", err)
	}
	return nil
}

// Unfavourite removes a favourite mark.
func (p *Partition) Unfavourite(ctx context.Context, messageID int64, userUUID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM message_favourites WHERE message_id = ? AND user_uuid = ?
	`, messageID, userUUID)
	if err != nil {
		return p.storageErr("favourite", err)
	}
	return nil
}

// SoftDeleteMessage flips is_deleted. The row stays; replies keep pointing at
// it and still resolve.
func (p *Partition) SoftDeleteMessage(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = 1, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return p.storageErr("delete", err)
	}
	return nil
}

// EditMessage replaces content and marks the row edited.
func (p *Partition) EditMessage(ctx context.Context, id int64, content string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, is_edited = 1, updated_at = ? WHERE id = ?
	`, content, time.Now().UTC(), id)
	if err != nil {
		return p.storageErr("edit", err)
	}
	return nil
}

// PinMessage sets or clears the pinned flag.
func (p *Partition) PinMessage(ctx context.Context, id int64, pinned bool) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE messages SET is_pinned = ?, updated_at = ? WHERE id = ?
	`, pinned, time.Now().UTC(), id)
	if err != nil {
		return p.storageErr("pin", err)
	}
	return nil
}

// CountMessages returns the total row count, including soft-deleted rows.
// Used by the out-of-band registry recount.
func (p *Partition) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	if err != nil {
		return 0, p.storageErr("count", err)
	}
	return n, nil
}
