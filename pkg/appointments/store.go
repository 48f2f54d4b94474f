// Package appointments provides an in-memory appointment book with a
// business-hours slot grid, for development and tests.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/dialog"
)

var (
	// ErrSlotTaken is returned when the requested slot is already booked.
	ErrSlotTaken = errors.New("appointments: slot already booked")

	// ErrOutsideHours is returned when the requested time falls outside
	// business hours.
	ErrOutsideHours = errors.New("appointments: time is outside business hours")
)

const (
	defaultOpenHour      = 9
	defaultCloseHour     = 17
	defaultSlotLength    = 30 * time.Minute
	defaultSearchHorizon = 14 * 24 * time.Hour
)

// Config holds configuration for the in-memory store.
type Config struct {
	// OpenHour and CloseHour bound the bookable day in Location time.
	// Defaults: 9 and 17.
	OpenHour  int
	CloseHour int

	// SlotLength is the appointment slot size. Defaults to 30 minutes.
	SlotLength time.Duration

	// SearchHorizon bounds how far ahead NextAvailableTime looks.
	// Defaults to 14 days.
	SearchHorizon time.Duration

	// Location resolves business hours. Defaults to UTC.
	Location *time.Location
}

// Store is an in-memory appointment book. Bookings live on a fixed slot
// grid: requested times are normalized to the slot that contains them.
// Monday through Friday are bookable; the store does not police the past.
type Store struct {
	mu        sync.Mutex
	booked    map[int64]booking // key: slot start unix seconds
	openHour  int
	closeHour int
	slot      time.Duration
	horizon   time.Duration
	loc       *time.Location
}

type booking struct {
	name  string
	phone string
}

// NewStore creates an in-memory appointment store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.OpenHour == 0 {
		cfg.OpenHour = defaultOpenHour
	}
	if cfg.CloseHour == 0 {
		cfg.CloseHour = defaultCloseHour
	}
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		return nil, fmt.Errorf("invalid business hours %d-%d", cfg.OpenHour, cfg.CloseHour)
	}
	if cfg.SlotLength == 0 {
		cfg.SlotLength = defaultSlotLength
	}
	if cfg.SlotLength < 0 {
		return nil, fmt.Errorf("invalid slot length %v", cfg.SlotLength)
	}
	if cfg.SearchHorizon == 0 {
		cfg.SearchHorizon = defaultSearchHorizon
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Store{
		booked:    make(map[int64]booking),
		openHour:  cfg.OpenHour,
		closeHour: cfg.CloseHour,
		slot:      cfg.SlotLength,
		horizon:   cfg.SearchHorizon,
		loc:       cfg.Location,
	}, nil
}

// CheckAvailability reports whether the slot containing t is open.
// Times outside business hours are unavailable, not errors.
func (s *Store) CheckAvailability(ctx context.Context, t time.Time) (bool, error) {
	slot := s.slotStart(t)
	if !s.withinHours(slot) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, taken := s.booked[slot.Unix()]
	return !taken, nil
}

// NextAvailableTime returns the first open slot strictly after the slot
// containing after. The second return is false when no slot is open
// within the search horizon.
func (s *Store) NextAvailableTime(ctx context.Context, after time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.slotStart(after).Add(s.slot)
	limit := after.Add(s.horizon)
	for candidate.Before(limit) {
		if s.withinHours(candidate) {
			if _, taken := s.booked[candidate.Unix()]; !taken {
				return candidate, true, nil
			}
		}
		candidate = candidate.Add(s.slot)
	}
	return time.Time{}, false, nil
}

// CreateAppointment books the slot containing t for the named caller.
func (s *Store) CreateAppointment(ctx context.Context, name, phone string, t time.Time) error {
	if name == "" {
		return errors.New("appointments: caller name is required")
	}

	slot := s.slotStart(t)
	if !s.withinHours(slot) {
		return ErrOutsideHours
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := slot.Unix()
	if _, taken := s.booked[key]; taken {
		return ErrSlotTaken
	}
	s.booked[key] = booking{name: name, phone: phone}
	return nil
}

// slotStart aligns t to the start of its slot in local wall time.
func (s *Store) slotStart(t time.Time) time.Time {
	local := t.In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	offset := local.Sub(midnight)
	return midnight.Add(offset - offset%s.slot)
}

func (s *Store) withinHours(slot time.Time) bool {
	if wd := slot.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	h := slot.Hour()
	return h >= s.openHour && h < s.closeHour
}

var _ dialog.AppointmentStore = (*Store)(nil)
