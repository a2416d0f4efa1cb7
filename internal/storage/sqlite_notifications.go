package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func scanChannel(row scanner) (*NotificationChannel, error) {
	var ch NotificationChannel
	var config string
	if err := row.Scan(&ch.ID, &ch.Name, &config, &ch.CreatedAt); err != nil {
		return nil, err
	}
	ch.Config = []byte(config)
	if strings.TrimSpace(config) == "" {
		ch.Config = []byte("{}")
	}
	return &ch, nil
}

func (s *SQLiteStore) CreateNotificationChannel(ctx context.Context, ch *NotificationChannel) error {
	if ch.CreatedAt == 0 {
		ch.CreatedAt = time.Now().Unix()
	}
	if len(ch.Config) == 0 {
		ch.Config = []byte("{}")
	}
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO notification_channels (name, config, created_at) VALUES (?, ?, ?)`,
		ch.Name, string(ch.Config), ch.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification channel: %w", err)
	}
	ch.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetNotificationChannel(ctx context.Context, id int64) (*NotificationChannel, error) {
	row := s.readDB.QueryRowContext(ctx, `
		SELECT id, name, config, created_at FROM notification_channels WHERE id = ?`, id)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ch, err
}

func (s *SQLiteStore) UpdateNotificationChannel(ctx context.Context, ch *NotificationChannel) error {
	res, err := s.writeDB.ExecContext(ctx, `
		UPDATE notification_channels SET name = ?, config = ? WHERE id = ?`,
		ch.Name, string(ch.Config), ch.ID)
	if err != nil {
		return fmt.Errorf("update notification channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteNotificationChannel(ctx context.Context, id int64) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListNotificationChannels(ctx context.Context) ([]*NotificationChannel, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, name, config, created_at FROM notification_channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list notification channels: %w", err)
	}
	defer rows.Close()

	var out []*NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ClaimDelivery inserts the pending ledger row for (event_key, channel_id).
// The unique constraint makes the claim at-most-once: a second claim for the
// same pair returns ErrDuplicateDelivery.
func (s *SQLiteStore) ClaimDelivery(ctx context.Context, eventKey string, channelID int64, now int64) (*Delivery, error) {
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT OR IGNORE INTO notification_deliveries (event_key, channel_id, status, attempted_at)
		VALUES (?, ?, ?, ?)`, eventKey, channelID, string(DeliveryPending), now)
	if err != nil {
		return nil, fmt.Errorf("claim delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrDuplicateDelivery
	}
	id, _ := res.LastInsertId()
	return &Delivery{
		ID:          id,
		EventKey:    eventKey,
		ChannelID:   channelID,
		Status:      DeliveryPending,
		AttemptedAt: now,
	}, nil
}

func (s *SQLiteStore) FinalizeDelivery(ctx context.Context, id int64, status DeliveryStatus, httpStatus *int, errMsg string, now int64) error {
	res, err := s.writeDB.ExecContext(ctx, `
		UPDATE notification_deliveries SET status = ?, http_status = ?, error = ?, finalized_at = ?
		WHERE id = ?`, string(status), nullInt(httpStatus), errMsg, now, id)
	if err != nil {
		return fmt.Errorf("finalize delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetDelivery(ctx context.Context, eventKey string, channelID int64) (*Delivery, error) {
	var d Delivery
	var status string
	var httpStatus, finalized sql.NullInt64
	err := s.readDB.QueryRowContext(ctx, `
		SELECT id, event_key, channel_id, status, http_status, error, attempted_at, finalized_at
		FROM notification_deliveries WHERE event_key = ? AND channel_id = ?`,
		eventKey, channelID).Scan(&d.ID, &d.EventKey, &d.ChannelID, &status, &httpStatus, &d.Error, &d.AttemptedAt, &finalized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Status = DeliveryStatus(status)
	d.HTTPStatus = intPtr(httpStatus)
	d.FinalizedAt = int64Ptr(finalized)
	return &d, nil
}
