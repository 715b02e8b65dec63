package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/flatwatch/flatwatch/internal/listing"
)

// Store wraps the database and provides CRUD for all persisted entities.
// All writes are serialized by an internal mutex.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an already opened and migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- users ---

// GetUser loads a user by Telegram ID. Returns nil when absent.
func (s *Store) GetUser(telegramID int64) (*listing.User, error) {
	row := s.db.QueryRow(
		"SELECT telegram_id, username, language FROM users WHERE telegram_id = ?",
		telegramID,
	)
	var u listing.User
	if err := row.Scan(&u.TelegramID, &u.Username, &u.Language); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user %d: %w", telegramID, err)
	}
	return &u, nil
}

// SaveUser inserts or updates a user, preserving created_at on update.
func (s *Store) SaveUser(u listing.User, nowNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO users (telegram_id, username, language, created_at_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			username = excluded.username,
			language = excluded.language
	`, u.TelegramID, u.Username, u.Language, nowNs)
	return err
}

// UpdateUserLanguage sets the preferred language for an existing user.
func (s *Store) UpdateUserLanguage(telegramID int64, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE users SET language = ? WHERE telegram_id = ?",
		language, telegramID,
	)
	return err
}

// --- subscriptions ---

// GetSubscription loads a user's subscription. Returns nil when absent.
func (s *Store) GetSubscription(userID int64) (*listing.Subscription, error) {
	row := s.db.QueryRow(
		"SELECT user_id, status, created_at_ns, expires_at_ns FROM subscriptions WHERE user_id = ?",
		userID,
	)
	var sub listing.Subscription
	if err := row.Scan(&sub.UserID, &sub.Status, &sub.CreatedAtNs, &sub.ExpiresAtNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription %d: %w", userID, err)
	}
	return &sub, nil
}

// SaveSubscription inserts or replaces a user's subscription.
func (s *Store) SaveSubscription(sub listing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO subscriptions (user_id, status, created_at_ns, expires_at_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status        = excluded.status,
			created_at_ns = excluded.created_at_ns,
			expires_at_ns = excluded.expires_at_ns
	`, sub.UserID, sub.Status, sub.CreatedAtNs, sub.ExpiresAtNs)
	return err
}

// UsersWithActiveSubscriptions returns all users whose subscription is
// active at nowNs.
func (s *Store) UsersWithActiveSubscriptions(nowNs int64) ([]listing.User, error) {
	rows, err := s.db.Query(`
		SELECT u.telegram_id, u.username, u.language
		FROM users u
		JOIN subscriptions sub ON sub.user_id = u.telegram_id
		WHERE sub.status = ? AND sub.expires_at_ns > ?
	`, listing.SubscriptionStatusActive, nowNs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []listing.User
	for rows.Next() {
		var u listing.User
		if err := rows.Scan(&u.TelegramID, &u.Username, &u.Language); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// --- user filters ---

// GetUserFilter loads a user's stored filter. Returns nil when absent.
func (s *Store) GetUserFilter(userID int64) (*listing.UserFilter, error) {
	row := s.db.QueryRow(
		"SELECT filter_json FROM user_filters WHERE user_id = ?",
		userID,
	)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user_filter %d: %w", userID, err)
	}
	f := &listing.UserFilter{}
	if err := json.Unmarshal([]byte(raw), f); err != nil {
		return nil, fmt.Errorf("unmarshal user_filter %d: %w", userID, err)
	}
	f.UserID = userID
	return f, nil
}

// SaveUserFilter inserts or replaces a user's filter.
func (s *Store) SaveUserFilter(f listing.UserFilter, nowNs int64) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal user_filter %d: %w", f.UserID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO user_filters (user_id, filter_json, updated_at_ns)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			filter_json   = excluded.filter_json,
			updated_at_ns = excluded.updated_at_ns
	`, f.UserID, string(data), nowNs)
	return err
}

// --- listings ---

// SaveListing upserts a listing. On conflict with an existing row for the
// same (source, external_id) the descriptive fields are refreshed while
// surrogate_id and first_seen_ns stay fixed.
func (s *Store) SaveListing(l listing.Listing) error {
	images, err := json.Marshal(l.Images)
	if err != nil {
		return fmt.Errorf("marshal images %s: %w", l.SurrogateID, err)
	}
	features, err := json.Marshal(l.Features)
	if err != nil {
		return fmt.Errorf("marshal features %s: %w", l.SurrogateID, err)
	}
	raw := []byte("{}")
	if len(l.Raw) > 0 {
		raw = l.Raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO listings (surrogate_id, external_id, source, title, description,
		                      price, rooms, area, city, district, street, postal_code,
		                      url, application_url, images_json, features_json, raw_json,
		                      first_seen_ns, last_seen_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO UPDATE SET
			title           = excluded.title,
			description     = excluded.description,
			price           = excluded.price,
			rooms           = excluded.rooms,
			area            = excluded.area,
			city            = excluded.city,
			district        = excluded.district,
			street          = excluded.street,
			postal_code     = excluded.postal_code,
			url             = excluded.url,
			application_url = excluded.application_url,
			images_json     = excluded.images_json,
			features_json   = excluded.features_json,
			raw_json        = excluded.raw_json,
			last_seen_ns    = excluded.last_seen_ns
	`, l.SurrogateID, l.ExternalID, l.Source, l.Title, l.Description,
		l.Price, l.Rooms, l.Area, l.City, l.District, l.Street, l.PostalCode,
		l.URL, l.ApplicationURL, string(images), string(features), string(raw),
		l.FirstSeenNs, l.LastSeenNs)
	return err
}

// GetListing loads one listing by surrogate ID. Returns nil when absent.
func (s *Store) GetListing(surrogateID string) (*listing.Listing, error) {
	row := s.db.QueryRow(selectListing+" WHERE surrogate_id = ?", surrogateID)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const selectListing = `
	SELECT surrogate_id, external_id, source, title, description,
	       price, rooms, area, city, district, street, postal_code,
	       url, application_url, images_json, features_json, raw_json,
	       first_seen_ns, last_seen_ns
	FROM listings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (listing.Listing, error) {
	var (
		l        listing.Listing
		images   string
		features string
		raw      string
	)
	err := row.Scan(&l.SurrogateID, &l.ExternalID, &l.Source, &l.Title, &l.Description,
		&l.Price, &l.Rooms, &l.Area, &l.City, &l.District, &l.Street, &l.PostalCode,
		&l.URL, &l.ApplicationURL, &images, &features, &raw,
		&l.FirstSeenNs, &l.LastSeenNs)
	if err != nil {
		return listing.Listing{}, err
	}
	if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
		return listing.Listing{}, fmt.Errorf("unmarshal images %s: %w", l.SurrogateID, err)
	}
	if err := json.Unmarshal([]byte(features), &l.Features); err != nil {
		return listing.Listing{}, fmt.Errorf("unmarshal features %s: %w", l.SurrogateID, err)
	}
	l.Raw = json.RawMessage(raw)
	return l, nil
}

// FindListings returns stored listings matching the query bounds, newest
// first by last_seen_ns. City matches case-insensitively as a substring.
func (s *Store) FindListings(q listing.Query, limit, offset int) ([]listing.Listing, error) {
	where := "1=1"
	var args []any
	if q.City != "" {
		where += " AND city LIKE ? COLLATE NOCASE"
		args = append(args, "%"+q.City+"%")
	}
	if q.PriceMin != nil {
		where += " AND price >= ?"
		args = append(args, *q.PriceMin)
	}
	if q.PriceMax != nil {
		where += " AND price <= ? AND price > 0"
		args = append(args, *q.PriceMax)
	}
	if q.RoomsMin != nil {
		where += " AND rooms >= ?"
		args = append(args, *q.RoomsMin)
	}
	if q.RoomsMax != nil {
		where += " AND rooms <= ? AND rooms > 0"
		args = append(args, *q.RoomsMax)
	}
	args = append(args, limit, offset)

	rows, err := s.db.Query(
		selectListing+" WHERE "+where+" ORDER BY last_seen_ns DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// KnownSurrogateIDs streams all stored surrogate IDs, used to warm the
// in-memory known-listing set on startup.
func (s *Store) KnownSurrogateIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT surrogate_id FROM listings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PurgeListingsOlderThan deletes listings whose last_seen_ns precedes
// cutoffNs, returning the number of rows removed.
func (s *Store) PurgeListingsOlderThan(cutoffNs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM listings WHERE last_seen_ns < ?", cutoffNs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- notifications ---

// SaveNotification records that a listing was delivered to a user. The
// (user_id, listing_id) pair is unique; re-recording an existing pair is
// a no-op and reported as recorded=false.
func (s *Store) SaveNotification(id string, userID int64, listingID string, sentAtNs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO notifications (id, user_id, listing_id, sent_at_ns)
		VALUES (?, ?, ?, ?)
	`, id, userID, listingID, sentAtNs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasNotification reports whether the user was already notified about the
// listing.
func (s *Store) HasNotification(userID int64, listingID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM notifications WHERE user_id = ? AND listing_id = ?",
		userID, listingID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
