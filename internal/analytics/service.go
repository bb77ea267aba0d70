package analytics

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/users"
)

var (
	errMissingDatabase = errors.New("analytics: database handle is required")

	noOpLogger = zap.NewNop()
)

// DayPoint is one day of a time series. Day is midnight UTC.
type DayPoint struct {
	Day   time.Time
	Count int64
}

// ActivityPoint is one day of the registration and activity series.
type ActivityPoint struct {
	Day         time.Time
	NewUsers    int64
	ActiveUsers int64
}

// HourBucket is one four-hour slice of the day, aggregated over the trailing
// week. Label reads like "08:00-12:00".
type HourBucket struct {
	Label string
	Notes int64
}

// TopUser is one row of the most-active-users table.
type TopUser struct {
	UserID   int64
	Username string
	Notes    int64
}

// ServiceConfig describes the dependencies of a Service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service computes the console's charts. Aggregation happens in Go over
// windowed fetches; the store keeps timestamps only.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// ActivitySeries returns per-day registrations and active note writers for
// the trailing window, one point per day including empty days.
func (s *Service) ActivitySeries(days int) ([]ActivityPoint, error) {
	if days <= 0 {
		days = 7
	}
	since := s.windowStart(days)

	var registrations []time.Time
	err := s.db.Model(&users.Role{}).
		Where("granted_at >= ?", since).
		Pluck("granted_at", &registrations).Error
	if err != nil {
		return nil, err
	}

	type noteStamp struct {
		UserID    int64
		CreatedAt time.Time
	}
	var stamps []noteStamp
	err = s.db.Model(&notes.Note{}).
		Select("user_id, created_at").
		Where("created_at >= ?", since).
		Find(&stamps).Error
	if err != nil {
		return nil, err
	}

	newByDay := make(map[time.Time]int64)
	for _, at := range registrations {
		newByDay[dayOf(at)]++
	}
	activeByDay := make(map[time.Time]map[int64]struct{})
	for _, stamp := range stamps {
		day := dayOf(stamp.CreatedAt)
		if activeByDay[day] == nil {
			activeByDay[day] = make(map[int64]struct{})
		}
		activeByDay[day][stamp.UserID] = struct{}{}
	}

	series := make([]ActivityPoint, 0, days)
	for day := since; len(series) < days; day = day.AddDate(0, 0, 1) {
		series = append(series, ActivityPoint{
			Day:         day,
			NewUsers:    newByDay[day],
			ActiveUsers: int64(len(activeByDay[day])),
		})
	}
	return series, nil
}

// NotesSeries returns per-day note creation counts for the trailing window.
func (s *Service) NotesSeries(days int) ([]DayPoint, error) {
	if days <= 0 {
		days = 7
	}
	since := s.windowStart(days)

	var stamps []time.Time
	err := s.db.Model(&notes.Note{}).
		Where("created_at >= ?", since).
		Pluck("created_at", &stamps).Error
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]int64)
	for _, at := range stamps {
		byDay[dayOf(at)]++
	}

	series := make([]DayPoint, 0, days)
	for day := since; len(series) < days; day = day.AddDate(0, 0, 1) {
		series = append(series, DayPoint{Day: day, Count: byDay[day]})
	}
	return series, nil
}

// RolesBreakdown counts users per permission tier.
func (s *Service) RolesBreakdown() (map[string]int64, error) {
	type roleCount struct {
		Role  string
		Count int64
	}
	var rows []roleCount
	err := s.db.Model(&users.Role{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	breakdown := map[string]int64{
		users.RoleUser:  0,
		users.RoleAdmin: 0,
		users.RoleOwner: 0,
	}
	for _, row := range rows {
		breakdown[row.Role] = row.Count
	}
	return breakdown, nil
}

// TimeOfDayBuckets splits the trailing week's notes into six four-hour
// buckets by UTC hour of creation.
func (s *Service) TimeOfDayBuckets() ([]HourBucket, error) {
	since := s.clock().UTC().AddDate(0, 0, -7)

	var stamps []time.Time
	err := s.db.Model(&notes.Note{}).
		Where("created_at >= ?", since).
		Pluck("created_at", &stamps).Error
	if err != nil {
		return nil, err
	}

	labels := []string{
		"00:00-04:00", "04:00-08:00", "08:00-12:00",
		"12:00-16:00", "16:00-20:00", "20:00-00:00",
	}
	counts := make([]int64, len(labels))
	for _, at := range stamps {
		counts[at.UTC().Hour()/4]++
	}

	buckets := make([]HourBucket, len(labels))
	for i, label := range labels {
		buckets[i] = HourBucket{Label: label, Notes: counts[i]}
	}
	return buckets, nil
}

// TopUsers returns the most prolific note writers.
func (s *Service) TopUsers(limit int) ([]TopUser, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []TopUser
	err := s.db.Model(&notes.Note{}).
		Select(`notes.user_id AS user_id,
			COALESCE(user_usernames.username, '') AS username,
			COUNT(*) AS notes`).
		Joins("LEFT JOIN user_usernames ON user_usernames.user_id = notes.user_id").
		Group("notes.user_id").
		Order("notes DESC, notes.user_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *Service) windowStart(days int) time.Time {
	return dayOf(s.clock().UTC()).AddDate(0, 0, -(days - 1))
}

func dayOf(at time.Time) time.Time {
	at = at.UTC()
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
}
